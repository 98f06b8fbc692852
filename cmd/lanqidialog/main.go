// Command lanqidialog talks to the realtime dialog service.
//
// Usage:
//
//	lanqidialog [flags] <command> [args]
//
// Commands:
//
//	config   - manage contexts (credentials and endpoints)
//	dialog   - run a voice session from a PCM file or the sound card
//	trace    - inspect frame traces recorded with dialog --trace
//	version  - print the version
//
// Contexts are stored in ~/.lanqi/lanqidialog/config.yaml.
package main

import (
	"fmt"
	"os"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/cmd/lanqidialog/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
