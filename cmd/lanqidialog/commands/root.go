package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/cli"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogmetrics"
)

const appName = "lanqidialog"

var (
	cfgFile     string
	contextName string
	outputFile  string
	inputFile   string
	outputJSON  bool
	verbose     bool
	metricsAddr string

	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Realtime voice dialog client",
	Long: `lanqidialog runs end-to-end voice sessions against the realtime dialog
service (实时语音对话) used by 蓝岐医童.

Contexts hold credentials and endpoints, similar to kubectl contexts, and
are stored in ~/.lanqi/lanqidialog/config.yaml.

Examples:
  # Save credentials
  lanqidialog config add-context prod --app-id 123 --access-key AK

  # Send a recorded question and keep the reply
  lanqidialog dialog --audio question.pcm -o reply.pcm

  # Talk through the sound card (build with -tags portaudio)
  lanqidialog dialog --device --tui`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(os.Stderr)
		return nil
	},
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.lanqi/lanqidialog/config.yaml)")
	pf.StringVarP(&contextName, "context", "c", "", "context name to use")
	pf.StringVarP(&outputFile, "output", "o", "", "output file")
	pf.StringVarP(&inputFile, "file", "f", "", "dialog file (YAML or JSON)")
	pf.BoolVar(&outputJSON, "json", false, "print results as JSON")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dialogCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

func getConfig() *cli.Config {
	return globalConfig
}

func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	ctx, err := cfg.ResolveContext(contextName)
	if errors.Is(err, cli.ErrNoCurrentContext) {
		return nil, fmt.Errorf("no context specified, use -c or 'lanqidialog config use-context'")
	}
	return ctx, err
}

func outputFormat() cli.OutputFormat {
	if outputJSON {
		return cli.FormatJSON
	}
	return cli.FormatYAML
}

func outputResult(v any, path string) error {
	return cli.Output(v, cli.OutputOptions{Format: outputFormat(), File: path})
}

// setupLogging installs the default slog handler writing to w.
func setupLogging(w io.Writer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// startMetrics registers the dialog collectors and, if --metrics-addr is
// set, serves them. It returns nil metrics when no address is given.
func startMetrics() *dialogmetrics.Metrics {
	if metricsAddr == "" {
		return nil
	}
	m := dialogmetrics.New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("lanqidialog: serving metrics", "addr", metricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("lanqidialog: metrics server", "error", err)
		}
	}()
	return m
}
