// Package logwindow bounds an unbounded line stream to a fixed head and
// tail while counting everything in between.
package logwindow

import "fmt"

const (
	DefaultHeadLines = 100
	DefaultTailLines = 100
)

// LogBuffer is the serializable state of a Window. Last holds the most
// recent lines and may overlap First when Total is small.
type LogBuffer struct {
	First []string `json:"first"`
	Last  []string `json:"last"`
	Total int      `json:"total"`
}

type Window struct {
	headCap int
	tailCap int
	first   []string
	ring    []string
	start   int
	total   int

	headSealed bool
}

func New(headCap, tailCap int) *Window {
	if headCap < 0 {
		headCap = 0
	}
	if tailCap < 0 {
		tailCap = 0
	}
	return &Window{headCap: headCap, tailCap: tailCap}
}

func NewDefault() *Window {
	return New(DefaultHeadLines, DefaultTailLines)
}

// FromBuffer restores a window from a snapshot, e.g. one reported by the
// server for a run that was already in progress.
func FromBuffer(buf LogBuffer, headCap, tailCap int) *Window {
	w := New(headCap, tailCap)
	first := buf.First
	if len(first) > w.headCap {
		first = first[:w.headCap]
	}
	w.first = append([]string(nil), first...)
	last := buf.Last
	if len(last) > w.tailCap {
		last = last[len(last)-w.tailCap:]
	}
	w.ring = append([]string(nil), last...)
	w.total = max(buf.Total, len(w.first), len(w.ring))
	// a short head followed by more lines cannot grow without breaking
	// stream positions
	w.headSealed = w.total > len(w.first)
	return w
}

func (w *Window) Capacity() int {
	return w.headCap + w.tailCap
}

func (w *Window) Total() int {
	return w.total
}

func (w *Window) Append(line string) {
	w.total++
	if !w.headSealed && len(w.first) < w.headCap {
		w.first = append(w.first, line)
	}
	if w.tailCap == 0 {
		return
	}
	if len(w.ring) < w.tailCap {
		w.ring = append(w.ring, line)
		return
	}
	w.ring[w.start] = line
	w.start = (w.start + 1) % w.tailCap
}

func (w *Window) AppendAll(lines ...string) {
	for _, line := range lines {
		w.Append(line)
	}
}

func (w *Window) Reset() {
	w.first = nil
	w.ring = nil
	w.start = 0
	w.total = 0
	w.headSealed = false
}

func (w *Window) Buffer() LogBuffer {
	last := make([]string, 0, len(w.ring))
	last = append(last, w.ring[w.start:]...)
	last = append(last, w.ring[:w.start]...)
	return LogBuffer{
		First: append([]string(nil), w.first...),
		Last:  last,
		Total: w.total,
	}
}

func (w *Window) Lines() []string {
	return Render(w.Buffer())
}

func OmittedMarker(n int) string {
	return fmt.Sprintf("%d lines omitted", n)
}

// Render flattens a buffer into head lines, an omission marker when some
// lines are in neither window, and the tail lines not already shown in the
// head. A tail line is a duplicate when it equals the head line at the same
// stream position.
func Render(buf LogBuffer) []string {
	tail, omitted := split(buf)
	out := make([]string, 0, len(buf.First)+len(tail)+1)
	out = append(out, buf.First...)
	if omitted > 0 {
		out = append(out, OmittedMarker(omitted))
	}
	return append(out, tail...)
}

// Omitted reports how many lines Render leaves out.
func Omitted(buf LogBuffer) int {
	_, omitted := split(buf)
	return omitted
}

func split(buf LogBuffer) ([]string, int) {
	tailStart := buf.Total - len(buf.Last)
	if tailStart < 0 {
		tailStart = 0
	}
	tail := make([]string, 0, len(buf.Last))
	for i, line := range buf.Last {
		pos := tailStart + i
		if pos < len(buf.First) && buf.First[pos] == line {
			continue
		}
		tail = append(tail, line)
	}
	omitted := buf.Total - len(buf.First) - len(tail)
	if omitted < 0 {
		omitted = 0
	}
	return tail, omitted
}
