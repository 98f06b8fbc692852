package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how Output renders a value.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"
	// FormatRaw writes strings and byte slices as is and anything else as
	// YAML.
	FormatRaw OutputFormat = "raw"
)

// OutputOptions tells Output where and how to write.
type OutputOptions struct {
	Format OutputFormat
	// File is created or truncated. Empty means Writer, or stdout.
	File   string
	Writer io.Writer
}

// Output renders v.
func Output(v any, opts OutputOptions) error {
	w := opts.Writer
	if opts.File != "" {
		f, err := os.Create(opts.File)
		if err != nil {
			return fmt.Errorf("cli: create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if w == nil {
		w = os.Stdout
	}

	switch opts.Format {
	case FormatYAML, "":
		return writeYAML(w, v)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case FormatRaw:
		switch raw := v.(type) {
		case []byte:
			_, err := w.Write(raw)
			return err
		case string:
			_, err := io.WriteString(w, raw)
			return err
		}
		return writeYAML(w, v)
	default:
		return fmt.Errorf("cli: unsupported output format %q", opts.Format)
	}
}

func writeYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("cli: encode yaml: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// PrintSuccess reports a completed action on stdout.
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

// PrintInfo reports progress on stdout.
func PrintInfo(format string, args ...any) {
	fmt.Printf("ℹ "+format+"\n", args...)
}

// PrintError reports a failure on stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
