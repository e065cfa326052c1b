package tasks

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/client"
)

var ErrMissingURL = errors.New("download job has no url")

// Fetcher retrieves a remote recording into dest, reporting progress in percent.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, progress func(int)) error
}

type DownloadPayload struct {
	URL  string `json:"url"`
	Dest string `json:"dest,omitempty"`
}

// NewDownloadHandler fetches the payload url into its dest, or into libraryDir when dest is empty.
// A fetch error is reported through done so the failed row stays around for inspection.
func NewDownloadHandler(f Fetcher, libraryDir string) client.Handler {
	return func(ctx context.Context, job *client.JobRecord, done client.DoneFunc) error {
		var p DownloadPayload
		if err := job.Bind(&p); err != nil {
			return err
		}
		if p.URL == "" {
			return ErrMissingURL
		}
		dest := p.Dest
		if dest == "" {
			dest = libraryDir
		}

		last := -1
		err := f.Fetch(ctx, p.URL, dest, func(pct int) {
			if pct == last {
				return
			}
			last = pct
			job.UpdateProgress(ctx, pct)
		})
		done(err)
		return nil
	}
}

var percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)%`)

// ExecFetcher runs an external download tool. Args may contain the placeholders {url} and {dest};
// when neither appears the url is appended as the last argument and the tool runs inside dest.
// Percentages printed by the tool are forwarded as progress.
type ExecFetcher struct {
	Command string
	Args    []string
	log     zerolog.Logger
}

func NewExecFetcher(command string, log zerolog.Logger) *ExecFetcher {
	fields := strings.Fields(command)
	f := &ExecFetcher{log: log}
	if len(fields) > 0 {
		f.Command = fields[0]
		f.Args = fields[1:]
	}
	return f
}

func (f *ExecFetcher) Fetch(ctx context.Context, url, dest string, progress func(int)) error {
	if f.Command == "" {
		return errors.New("no fetch command configured")
	}

	args, placed := expandArgs(f.Args, url, dest)
	if !placed {
		args = append(args, url)
	}

	cmd := exec.CommandContext(ctx, f.Command, args...)
	if !placed {
		cmd.Dir = filepath.Clean(dest)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", f.Command, err)
	}
	f.log.Debug().Str("command", f.Command).Strs("args", args).Msg("fetch started")

	scanProgress(stdout, progress)

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %w: %s", f.Command, err, msg)
		}
		return fmt.Errorf("%s failed: %w", f.Command, err)
	}
	progress(100)
	return nil
}

func expandArgs(args []string, url, dest string) ([]string, bool) {
	out := make([]string, 0, len(args)+1)
	placed := false
	for _, a := range args {
		if strings.Contains(a, "{url}") || strings.Contains(a, "{dest}") {
			placed = true
		}
		a = strings.ReplaceAll(a, "{url}", url)
		a = strings.ReplaceAll(a, "{dest}", dest)
		out = append(out, a)
	}
	return out, placed
}

// scanProgress reads r until EOF and calls progress for every percentage it finds.
// Download tools redraw their progress line with carriage returns, so both \r and \n end a line.
func scanProgress(r io.Reader, progress func(int)) {
	sc := bufio.NewScanner(r)
	sc.Split(scanLines)
	for sc.Scan() {
		m := percentPattern.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v < 0 || v > 100 {
			continue
		}
		progress(int(v))
	}
	_, _ = io.Copy(io.Discard, r)
}

func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
