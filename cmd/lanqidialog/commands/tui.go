package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/buffer"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/cli"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/realtimedialog"
)

const (
	screenRefresh    = 200 * time.Millisecond
	screenLogLines   = 200
	screenTranscript = 100
)

// dialogScreen redraws a cli.Frame with the session status, transcript
// and recent log lines.
type dialogScreen struct {
	out        io.Writer
	logs       *cli.LogWriter
	transcript *buffer.RingBuffer[string]
	started    time.Time

	mu       sync.Mutex
	title    string
	status   string
	alert    string
	speaking bool

	done chan struct{}
	once sync.Once
}

func newDialogScreen(title string, out io.Writer) *dialogScreen {
	return &dialogScreen{
		out:        out,
		logs:       cli.NewLogWriter(screenLogLines),
		transcript: buffer.RingN[string](screenTranscript),
		started:    time.Now(),
		title:      title,
		status:     "starting",
		done:       make(chan struct{}),
	}
}

// Logs is where slog output goes while the screen is up.
func (s *dialogScreen) Logs() io.Writer {
	return s.logs
}

// HandleEvent updates the screen state. line is the transcript line for
// ev, if it has one.
func (s *dialogScreen) HandleEvent(ev realtimedialog.Event, line string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case realtimedialog.KindStatus:
		s.status = ev.Status
		return
	case realtimedialog.KindError:
		s.alert = ev.Err.Error()
	case realtimedialog.KindPlaybackStart:
		s.speaking = true
	case realtimedialog.KindPlaybackEnd:
		s.speaking = false
	}
	if ok && ev.Kind == realtimedialog.KindText {
		s.transcript.Add(line)
	}
}

// Run redraws until ctx is done or Close is called.
func (s *dialogScreen) Run(ctx context.Context) {
	t := time.NewTicker(screenRefresh)
	defer t.Stop()
	for {
		s.draw()
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-t.C:
		}
	}
}

// Close stops redrawing and leaves the last frame on screen.
func (s *dialogScreen) Close() {
	s.once.Do(func() {
		close(s.done)
		s.draw()
		fmt.Fprintln(s.out)
	})
}

func (s *dialogScreen) frame() cli.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.status + " · " + cli.FormatDuration(time.Since(s.started).Truncate(time.Second))
	if s.speaking {
		status += " · speaking, mic muted"
	}
	return cli.Frame{
		Styles: cli.NewStyles(cli.DefaultTheme),
		Title:  s.title,
		Status: status,
		Alert:  s.alert,
		Sections: []cli.Section{
			{Label: "Transcript", Lines: s.transcript.Items()},
			{Label: "Log", Lines: s.logs.Lines()},
		},
		Help: "ctrl-c to end the session",
	}
}

func (s *dialogScreen) draw() {
	width, height := terminalSize()
	fmt.Fprint(s.out, "\x1b[H\x1b[2J"+s.frame().Render(width, height))
}

// terminalSize reads COLUMNS and LINES, falling back to 80x24.
func terminalSize() (int, int) {
	size := func(env string, def int) int {
		if n, err := strconv.Atoi(os.Getenv(env)); err == nil && n > 0 {
			return n
		}
		return def
	}
	return size("COLUMNS", 80), size("LINES", 24)
}
