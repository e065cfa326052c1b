package types

import "time"

// Lock is a held named lock row. Existence means held.
type Lock struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
