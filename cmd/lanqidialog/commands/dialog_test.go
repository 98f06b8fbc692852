package commands

import (
	"bytes"
	"context"
	"slices"
	"testing"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/capture"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/realtimedialog"
)

func textEvent(ev dialogproto.Event, text *realtimedialog.ServerText) realtimedialog.Event {
	return realtimedialog.Event{Kind: realtimedialog.KindText, ServerEvent: ev, Text: text}
}

func TestTranscriptLog(t *testing.T) {
	var tl transcriptLog
	events := []realtimedialog.Event{
		{Kind: realtimedialog.KindStatus, Status: "session started"},
		textEvent(dialogproto.EventASRResponse, &realtimedialog.ServerText{Results: []realtimedialog.ASRResult{{Text: "头", IsInterim: true}}}),
		textEvent(dialogproto.EventASRResponse, &realtimedialog.ServerText{Results: []realtimedialog.ASRResult{{Text: "头疼怎么办"}}}),
		textEvent(dialogproto.EventChatResponse, &realtimedialog.ServerText{Content: "先休息，"}),
		textEvent(dialogproto.EventChatResponse, &realtimedialog.ServerText{Content: "多喝水。"}),
		textEvent(dialogproto.EventTTSSentenceStart, &realtimedialog.ServerText{Text: "先休息"}),
		textEvent(dialogproto.EventChatEnded, nil),
		textEvent(dialogproto.EventTTSEnded, nil),
		textEvent(dialogproto.EventChatResponse, &realtimedialog.ServerText{Content: "还有"}),
	}
	var printed []string
	for _, ev := range events {
		if line, ok := tl.add(ev); ok {
			printed = append(printed, line)
		}
	}
	want := []string{"· session started", "user: 头疼怎么办", "bot: 先休息，多喝水。"}
	if !slices.Equal(printed, want) {
		t.Errorf("printed = %q, want %q", printed, want)
	}
	wantLines := []string{"user: 头疼怎么办", "bot: 先休息，多喝水。", "bot: 还有"}
	if got := tl.lines(); !slices.Equal(got, wantLines) {
		t.Errorf("lines = %q, want %q", got, wantLines)
	}
}

func TestTerminalSize(t *testing.T) {
	t.Setenv("COLUMNS", "120")
	t.Setenv("LINES", "")
	w, h := terminalSize()
	if w != 120 || h != 24 {
		t.Errorf("terminalSize = %d, %d", w, h)
	}
}

func TestWaitDialogEndsAfterInputFile(t *testing.T) {
	src := capture.NewReaderSource(bytes.NewReader(make([]byte, 3200)), pcm.L16Mono16K)
	mic := capture.New(src)
	// Taken before Start, the way runDialog wires it.
	sourceEOF := mic.Exhausted()
	if err := mic.Start(capture.HandlerFunc(func([]byte) {})); err != nil {
		t.Fatal(err)
	}
	defer mic.Close()

	returned := make(chan struct{})
	go func() {
		waitDialog(context.Background(), make(chan struct{}), sourceEOF, 20*time.Millisecond)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("waitDialog did not return after the input file ended")
	}
}

func TestWaitDialogEndsOnConnectionLoss(t *testing.T) {
	connDone := make(chan struct{})
	close(connDone)
	returned := make(chan struct{})
	go func() {
		waitDialog(context.Background(), connDone, nil, time.Hour)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("waitDialog ignored the closed connection")
	}
}
