// Package progress reports structure download progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback while a structure file downloads.
type Reporter interface {
	// Wrap returns a reader that reports bytes read from r. size is -1 when
	// unknown.
	Wrap(r io.Reader, size int64) io.Reader
	Finish()
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a CIReporter if the CI environment variable is set. Output goes to w,
// which should be stderr so stdout stays clean for the structure.
func NewReporter(w io.Writer, description string) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{out: w, description: description}
	}
	return &TerminalReporter{out: w, description: description}
}

// TerminalReporter displays a byte progress bar.
type TerminalReporter struct {
	out         io.Writer
	description string
	bar         *progressbar.ProgressBar
}

func (r *TerminalReporter) Wrap(src io.Reader, size int64) io.Reader {
	r.bar = progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(r.description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return io.TeeReader(src, r.bar)
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints a single summary line suitable for CI logs.
type CIReporter struct {
	out         io.Writer
	description string
	read        atomic.Int64
	started     bool
}

func (r *CIReporter) Wrap(src io.Reader, size int64) io.Reader {
	r.started = true
	if size >= 0 {
		fmt.Fprintf(r.out, "%s (%d bytes)\n", r.description, size)
	} else {
		fmt.Fprintf(r.out, "%s\n", r.description)
	}
	return io.TeeReader(src, counter{&r.read})
}

func (r *CIReporter) Finish() {
	if r.started {
		fmt.Fprintf(r.out, "Downloaded %d bytes\n", r.read.Load())
	}
}

type counter struct{ n *atomic.Int64 }

func (c counter) Write(p []byte) (int, error) {
	c.n.Add(int64(len(p)))
	return len(p), nil
}
