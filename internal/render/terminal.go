package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Terminal writes the transcript to w as it is revealed. Status changes go on
// their own line. Write errors are ignored.
type Terminal struct {
	mu      sync.Mutex
	w       io.Writer
	pending bool // a transcript line has been started
	status  string
}

var _ Sink = (*Terminal)(nil)

// NewTerminal returns a terminal sink writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Handle implements [Sink].
func (t *Terminal) Handle(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case EventReset:
		t.endLine()
		n := 0
		if ev.Snapshot != nil {
			n = len(ev.Snapshot.Tokens)
		}
		fmt.Fprintf(t.w, "── transcript (%d tokens) ──\n", n)
	case EventReveal:
		text := ev.Text
		if !t.pending {
			text = strings.TrimLeft(text, " ")
		}
		io.WriteString(t.w, text)
		t.pending = true
	case EventStatus:
		label := ev.Status.String()
		if label == t.status {
			return
		}
		t.status = label
		t.endLine()
		fmt.Fprintf(t.w, "[%s]\n", label)
	}
}

func (t *Terminal) endLine() {
	if t.pending {
		io.WriteString(t.w, "\n")
		t.pending = false
	}
}
