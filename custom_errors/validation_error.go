package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError collects every failed option of a configuration so callers see them all at once.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	if err == nil {
		return
	}
	c.Errors = append(c.Errors, err)
}

func (c *ValidationError) Addf(format string, args ...any) {
	c.Add(fmt.Errorf(format, args...))
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

// ErrOrNil returns c only when it collected something.
func (c *ValidationError) ErrOrNil() error {
	if !c.HasError() {
		return nil
	}
	return c
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("invalid configuration: %v", errors.Join(c.Errors...))
}

func (c *ValidationError) Unwrap() []error {
	return c.Errors
}
