package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

func TestLogWriterLines(t *testing.T) {
	w := NewLogWriter(3)
	fmt.Fprint(w, "one\ntwo\n")
	fmt.Fprint(w, "thr")
	if got := w.Lines(); !slices.Equal(got, []string{"one", "two"}) {
		t.Errorf("Lines = %q", got)
	}
	fmt.Fprint(w, "ee\nfour\n")
	if got := w.Lines(); !slices.Equal(got, []string{"two", "three", "four"}) {
		t.Errorf("Lines = %q", got)
	}
	if w.Dropped() != 1 {
		t.Errorf("Dropped = %d", w.Dropped())
	}
}

func TestLogWriterWithSlog(t *testing.T) {
	w := NewLogWriter(10)
	log := slog.New(slog.NewTextHandler(w, nil))
	log.Info("realtimedialog: session started", "session_id", "s1")
	lines := w.Lines()
	if len(lines) != 1 || !strings.Contains(lines[0], "session_id=s1") {
		t.Errorf("Lines = %q", lines)
	}
}
