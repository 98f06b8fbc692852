package commands

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage contexts",
	Long: `Manage credential contexts.

A context stores app_id, access_key, and optionally app_key, resource_id,
base_url and a default speaker. The file is ~/.lanqi/lanqidialog/config.yaml.`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or replace a context",
	Long: `Add or replace a context.

Example:
  lanqidialog config add-context prod --app-id 123456 --access-key AK
  lanqidialog config add-context test --app-id 1 --access-key AK --base-url wss://example/api/v3/realtime/dialogue`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		ctx := &cli.Context{}
		for flag, dst := range map[string]*string{
			"app-id":      &ctx.AppID,
			"access-key":  &ctx.AccessKey,
			"app-key":     &ctx.AppKey,
			"resource-id": &ctx.ResourceID,
			"base-url":    &ctx.BaseURL,
			"speaker":     &ctx.Speaker,
		} {
			v, err := flags.GetString(flag)
			if err != nil {
				return fmt.Errorf("failed to read %q flag: %w", flag, err)
			}
			*dst = v
		}
		if ctx.AppID == "" || ctx.AccessKey == "" {
			return errors.New("--app-id and --access-key are required")
		}

		cfg := getConfig()
		if err := cfg.AddContext(args[0], ctx); err != nil {
			return err
		}
		if cfg.CurrentContext == "" {
			if err := cfg.UseContext(args[0]); err != nil {
				return err
			}
		}
		cli.PrintSuccess("Context %q added", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getConfig().UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"get-contexts"},
	Short:   "List contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if len(cfg.Contexts) == 0 {
			cli.PrintInfo("No contexts configured")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tAPP_ID\tBASE_URL")
		for _, name := range cfg.ContextNames() {
			ctx := cfg.Contexts[name]
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			baseURL := ctx.BaseURL
			if baseURL == "" {
				baseURL = "(default)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, ctx.AppID, baseURL)
		}
		return w.Flush()
	},
}

type configView struct {
	Path           string                  `json:"path" yaml:"path"`
	CurrentContext string                  `json:"current_context" yaml:"current_context"`
	Contexts       map[string]*cli.Context `json:"contexts" yaml:"contexts"`
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the configuration with keys masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		view := configView{
			Path:           cfg.Path(),
			CurrentContext: cfg.CurrentContext,
			Contexts:       make(map[string]*cli.Context, len(cfg.Contexts)),
		}
		for name, ctx := range cfg.Contexts {
			view.Contexts[name] = ctx.Masked()
		}
		return outputResult(view, "")
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.String("app-id", "", "application id (required)")
	f.String("access-key", "", "access key (required)")
	f.String("app-key", "", "app key (default is the public dialog app key)")
	f.String("resource-id", "", "resource id (default volc.speech.dialog)")
	f.String("base-url", "", "websocket endpoint")
	f.String("speaker", "", "default voice")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)
}
