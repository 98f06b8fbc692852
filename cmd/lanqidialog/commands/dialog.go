package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/capture"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/resampler"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/cli"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogproto"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogtrace"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/realtimedialog"
)

var (
	dialogAudio     string
	dialogInputRate int
	dialogGreeting  string
	dialogTTSText   string
	dialogDuration  time.Duration
	dialogTrace     string
	dialogTUI       bool
	dialogDevice    bool
	dialogSessionID string
)

var dialogCmd = &cobra.Command{
	Use:   "dialog",
	Short: "Run a realtime voice session",
	Long: `Run a realtime voice session.

Audio comes from a 16-bit mono PCM file (--audio) or the sound card
(--device, needs a build with -tags portaudio). Without either, the bot can
still speak with --greeting or --tts-text. Received speech is written to -o
as 16-bit PCM at the playback rate.

The dialog file (-f) overrides realtimedialog settings, for example:

  bot_name: 蓝岐医童
  speaker: zh_female_vv_jupiter_bigtts
  strict_audit: false
  silence_threshold: 1s
  asr_extra:
    end_smooth_window_ms: 500

Examples:
  lanqidialog dialog --audio question.pcm -o reply.pcm
  lanqidialog dialog --audio question_48k.pcm --input-rate 48000 --trace s.msgpack
  lanqidialog dialog --greeting 你好 --duration 10s -o hello.pcm
  lanqidialog dialog --device --tui`,
	Args: cobra.NoArgs,
	RunE: runDialog,
}

func init() {
	f := dialogCmd.Flags()
	f.StringVar(&dialogAudio, "audio", "", "16-bit mono PCM file to send as microphone input")
	f.IntVar(&dialogInputRate, "input-rate", realtimedialog.DefaultCaptureRate, "sample rate of --audio; resampled when not 16000")
	f.StringVar(&dialogGreeting, "greeting", "", "ask the bot to say this greeting after the session starts")
	f.StringVar(&dialogTTSText, "tts-text", "", "ask the bot to speak this text")
	f.DurationVar(&dialogDuration, "duration", 0, "stop after this long (default: until input ends or interrupted)")
	f.StringVar(&dialogTrace, "trace", "", "record every frame to this msgpack file")
	f.BoolVar(&dialogTUI, "tui", false, "show a status screen instead of log lines")
	f.BoolVar(&dialogDevice, "device", false, "use the default microphone and speaker")
	f.StringVar(&dialogSessionID, "session-id", "", "session id (default: random)")
}

// dialogSummary is printed when the session ends.
type dialogSummary struct {
	SessionID     string   `json:"session_id" yaml:"session_id"`
	Duration      string   `json:"duration" yaml:"duration"`
	ReceivedAudio string   `json:"received_audio" yaml:"received_audio"`
	AudioFile     string   `json:"audio_file,omitempty" yaml:"audio_file,omitempty"`
	TraceFile     string   `json:"trace_file,omitempty" yaml:"trace_file,omitempty"`
	Frames        int      `json:"traced_frames,omitempty" yaml:"traced_frames,omitempty"`
	Transcript    []string `json:"transcript,omitempty" yaml:"transcript,omitempty"`
	Error         string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func loadDialogConfig() (realtimedialog.Config, error) {
	var cfg realtimedialog.Config
	if inputFile != "" {
		if err := cli.LoadRequest(inputFile, &cfg); err != nil {
			return cfg, err
		}
	}
	ctx, err := getContext()
	if err != nil {
		return cfg, err
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.AppID, ctx.AppID)
	fill(&cfg.AccessKey, ctx.AccessKey)
	fill(&cfg.AppKey, ctx.AppKey)
	fill(&cfg.ResourceID, ctx.ResourceID)
	fill(&cfg.URL, ctx.BaseURL)
	fill(&cfg.Speaker, ctx.Speaker)
	slog.Debug("lanqidialog: using context", "context", ctx.Name)
	return cfg.WithDefaults(), nil
}

func runDialog(cmd *cobra.Command, args []string) error {
	if dialogAudio != "" && dialogDevice {
		return errors.New("--audio and --device are exclusive")
	}
	cfg, err := loadDialogConfig()
	if err != nil {
		return err
	}
	captureFormat, err := pcm.FormatForRate(cfg.CaptureRate)
	if err != nil {
		return err
	}
	playbackFormat, err := pcm.FormatForRate(cfg.PlaybackRate)
	if err != nil {
		return err
	}

	var screen *dialogScreen
	if dialogTUI {
		screen = newDialogScreen(cfg.BotName, os.Stdout)
		setupLogging(screen.Logs())
	}

	metrics := startMetrics()
	opts := []realtimedialog.DialogOption{
		realtimedialog.WithDialogMetrics(metrics),
	}

	var (
		source    capture.Source
		sourceEOF <-chan struct{}
	)
	switch {
	case dialogDevice:
		dev, err := openDevices(captureFormat, playbackFormat)
		if err != nil {
			return err
		}
		defer dev.Close()
		source = dev.Source
		opts = append(opts, realtimedialog.WithSink(dev.Sink))
	case dialogAudio != "":
		src, err := openAudioFile(dialogAudio, dialogInputRate, captureFormat)
		if err != nil {
			return err
		}
		source = src
	}
	if source != nil {
		mic := capture.New(source, capture.WithMetrics(metrics))
		sourceEOF = mic.Exhausted()
		opts = append(opts, realtimedialog.WithDialogRecorder(mic))
	}

	var rec *dialogtrace.Recorder
	if dialogTrace != "" {
		rec, err = dialogtrace.Create(dialogTrace)
		if err != nil {
			return err
		}
		defer rec.Close()
		opts = append(opts, realtimedialog.WithFrameTap(rec))
	}

	transcript := &transcriptLog{}
	observer := realtimedialog.ObserverFunc(func(ev realtimedialog.Event) {
		line, ok := transcript.add(ev)
		if screen != nil {
			screen.HandleEvent(ev, line, ok)
			return
		}
		if ok {
			fmt.Fprintln(os.Stderr, line)
		}
	})
	opts = append(opts, realtimedialog.WithDialogObserver(observer))

	d, err := realtimedialog.NewDialog(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if dialogDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialogDuration)
		defer cancel()
	}
	if screen != nil {
		go screen.Run(ctx)
	}

	started := time.Now()
	if err := d.Start(ctx, dialogSessionID); err != nil {
		return err
	}
	if dialogGreeting != "" {
		if err := d.SayHello(ctx, dialogGreeting).Wait(ctx); err != nil {
			slog.Warn("lanqidialog: say hello", "error", err)
		}
	}
	if dialogTTSText != "" {
		payload := realtimedialog.ChatTTSTextPayload{Start: true, End: true, Content: dialogTTSText}
		if err := d.ChatTTSText(ctx, payload).Wait(ctx); err != nil {
			slog.Warn("lanqidialog: chat tts text", "error", err)
		}
	}

	waitDialog(ctx, d.Done(), sourceEOF, defaultReplyWait)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopErr := d.Stop(stopCtx)
	if screen != nil {
		screen.Close()
		setupLogging(os.Stderr)
	}

	summary := dialogSummary{
		SessionID:     d.SessionID(),
		Duration:      cli.FormatDuration(time.Since(started)),
		ReceivedAudio: cli.FormatBytes(int64(d.AudioLog().TotalSize() / 2)),
		Transcript:    transcript.lines(),
	}
	if err := errors.Join(d.Err(), stopErr); err != nil {
		summary.Error = err.Error()
	}
	if outputFile != "" {
		if err := d.AudioLog().SavePCM16(outputFile); err != nil {
			return err
		}
		summary.AudioFile = outputFile
	}
	if rec != nil {
		if err := rec.Flush(); err != nil {
			return err
		}
		summary.TraceFile = dialogTrace
		summary.Frames = rec.Count()
	}
	return outputResult(summary, "")
}

// defaultReplyWait is how long a file-driven dialog keeps listening after the
// input has been sent.
const defaultReplyWait = 8 * time.Second

// waitDialog returns when ctx is done, the connection drops, or the input
// file has been sent and the reply has had time to arrive.
func waitDialog(ctx context.Context, connDone, sourceEOF <-chan struct{}, replyWait time.Duration) {
	var tail <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-connDone:
			return
		case <-sourceEOF:
			sourceEOF = nil
			if dialogDuration == 0 {
				slog.Info("lanqidialog: input sent, waiting for reply", "wait", replyWait)
				tail = time.After(replyWait)
			}
		case <-tail:
			return
		}
	}
}

// openAudioFile opens a PCM file as a paced capture source, resampling
// when the file rate differs from the capture format.
func openAudioFile(path string, rate int, format pcm.Format) (capture.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if rate == format.SampleRate() {
		return capture.NewReaderSource(f, format, capture.WithRealtime(true)), nil
	}
	src, err := capture.NewResamplingSource(f, resampler.Format{SampleRate: rate}, format, capture.WithRealtime(true))
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// transcriptLog collects the finished lines of both speakers.
type transcriptLog struct {
	mu      sync.Mutex
	entries []string
	reply   string
}

// add returns a printable line for ev, if ev is worth showing.
func (t *transcriptLog) add(ev realtimedialog.Event) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case realtimedialog.KindStatus:
		return "· " + ev.Status, true
	case realtimedialog.KindError:
		return "! " + ev.Err.Error(), true
	case realtimedialog.KindText:
	default:
		return "", false
	}
	switch ev.ServerEvent {
	case dialogproto.EventASRResponse:
		if ev.Text == nil || len(ev.Text.Results) == 0 || ev.Text.Results[0].IsInterim {
			return "", false
		}
		line := "user: " + ev.Text.String()
		t.entries = append(t.entries, line)
		return line, true
	case dialogproto.EventChatResponse:
		t.reply += ev.Text.String()
		return "", false
	case dialogproto.EventChatEnded, dialogproto.EventTTSEnded:
		if t.reply == "" {
			return "", false
		}
		line := "bot: " + t.reply
		t.reply = ""
		t.entries = append(t.entries, line)
		return line, true
	}
	return "", false
}

func (t *transcriptLog) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reply != "" {
		return append(t.entries, "bot: "+t.reply)
	}
	return t.entries
}
