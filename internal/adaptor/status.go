package adaptor

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
)

// StatusReporter forwards progress and status messages to the job host.
type StatusReporter interface {
	ReportProgress(progress float64)
	ReportStatus(message string)
}

// LineReporter writes status updates as "openjd_progress: N" and
// "openjd_status: msg" lines, the format the job host parses from the
// adaptor's stdout.
type LineReporter struct {
	mu       sync.Mutex
	w        io.Writer
	last     float64
	reported bool
}

// NewLineReporter creates a reporter writing to w.
func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

// ReportProgress writes the progress truncated to a whole percentage,
// skipping repeats of the last value.
func (r *LineReporter) ReportProgress(progress float64) {
	p := math.Trunc(math.Max(0, math.Min(100, progress)))

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reported && p == r.last {
		return
	}

	r.last = p
	r.reported = true

	fmt.Fprintf(r.w, "openjd_progress: %s\n", strconv.FormatFloat(p, 'f', -1, 64))
}

// ReportStatus writes a status message.
func (r *LineReporter) ReportStatus(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "openjd_status: %s\n", message)
}

type discardReporter struct{}

func (discardReporter) ReportProgress(float64) {}
func (discardReporter) ReportStatus(string)    {}
