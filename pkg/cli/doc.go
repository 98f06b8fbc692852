// Package cli holds the pieces shared by the command-line tools: context
// config under ~/.lanqi/<app>, value output as YAML or JSON, request file
// loading and a small lipgloss status screen.
//
//	cfg, err := cli.LoadConfig("lanqidialog")
//	...
//	ctx, err := cfg.ResolveContext(contextFlag)
//	...
//	cli.Output(records, cli.OutputOptions{Format: cli.FormatJSON})
package cli
