package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat = OutputFormatYAML

// SetOutputFormat sets the global output format. Unknown values fall back
// to YAML.
func SetOutputFormat(format string) {
	switch OutputFormat(format) {
	case OutputFormatJSON:
		globalOutputFormat = OutputFormatJSON
	default:
		globalOutputFormat = OutputFormatYAML
	}
}

// GetOutputFormat returns the current global output format.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputTo writes data to the given writer in the specified format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// OutputStreamItem writes one message of a stream. JSON messages are
// written compact on one line; YAML messages are separated by "---".
func OutputStreamItem(w io.Writer, format OutputFormat, msg json.RawMessage) error {
	if format == OutputFormatJSON {
		_, err := fmt.Fprintf(w, "%s\n", msg)
		return err
	}
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return fmt.Errorf("failed to decode stream message: %w", err)
	}
	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}
	return OutputTo(w, OutputFormatYAML, v)
}
