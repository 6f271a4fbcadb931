// Package format renders command results as table, json, yaml or text.
package format

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/campusdesk/cli/internal/config"
)

// Formatter writes data in one output format
type Formatter interface {
	Format(w io.Writer, data interface{}) error
}

// GetFormatter returns the formatter for format
func GetFormatter(format string, useColors bool) (Formatter, error) {
	switch format {
	case "table":
		return NewTableFormatter(useColors), nil
	case "json":
		return NewJSONFormatter(true), nil
	case "json-compact":
		return NewJSONFormatter(false), nil
	case "yaml":
		return NewYAMLFormatter(), nil
	case "text":
		return NewTextFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Print writes data to stdout in the configured output format
func Print(data interface{}) error {
	return Fprint(os.Stdout, config.GetOutputFormat(), data)
}

// Fprint writes data to w in format
func Fprint(w io.Writer, format string, data interface{}) error {
	formatter, err := GetFormatter(format, config.Get().Format.Colors)
	if err != nil {
		return err
	}
	return formatter.Format(w, data)
}

// Status lines go to stderr so piped output stays machine readable.
var statusOut io.Writer = os.Stderr

func status(attr color.Attribute, prefix, message string, args ...interface{}) {
	if config.Get().Format.Colors {
		color.New(attr).Fprintf(statusOut, message+"\n", args...)
		return
	}
	fmt.Fprintf(statusOut, prefix+message+"\n", args...)
}

// PrintSuccess prints a success message
func PrintSuccess(message string, args ...interface{}) {
	status(color.FgGreen, "", message, args...)
}

// PrintError prints an error message
func PrintError(message string, args ...interface{}) {
	status(color.FgRed, "Error: ", message, args...)
}

// PrintWarning prints a warning message
func PrintWarning(message string, args ...interface{}) {
	status(color.FgYellow, "Warning: ", message, args...)
}

// PrintInfo prints an info message
func PrintInfo(message string, args ...interface{}) {
	status(color.FgBlue, "", message, args...)
}
