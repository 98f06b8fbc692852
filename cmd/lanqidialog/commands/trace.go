package commands

import (
	"github.com/spf13/cobra"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/dialogtrace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect frame traces",
}

var traceDumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the frames in a trace",
	Long: `Print the frames recorded by 'dialog --trace' as YAML, or JSON with --json.

Audio frames show their size only.

Examples:
  lanqidialog trace dump session.msgpack
  lanqidialog trace dump session.msgpack --json | jq '.[] | select(.error_code)'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := dialogtrace.ReadFile(args[0])
		if err != nil {
			return err
		}
		return outputResult(recs, outputFile)
	},
}

func init() {
	traceCmd.AddCommand(traceDumpCmd)
}
