package format

import (
	"fmt"
	"io"
)

// TextFormatter writes "Key: value" lines
type TextFormatter struct{}

// NewTextFormatter creates a new text formatter
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

// Format writes data as plain text
func (f *TextFormatter) Format(w io.Writer, data interface{}) error {
	if data == nil {
		fmt.Fprintln(w, "No data")
		return nil
	}
	if s, ok := data.(string); ok {
		fmt.Fprintln(w, s)
		return nil
	}

	if items, ok := rows(data); ok {
		if len(items) == 0 {
			fmt.Fprintln(w, "No data")
		}
		for i, item := range items {
			record, ok := fields(item)
			if !ok {
				fmt.Fprintln(w, plain(item))
				continue
			}
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "Item %d:\n", i+1)
			f.writeRecord(w, "  ", record)
		}
		return nil
	}

	if record, ok := fields(data); ok {
		f.writeRecord(w, "", record)
		return nil
	}
	fmt.Fprintln(w, plain(data))
	return nil
}

func (f *TextFormatter) writeRecord(w io.Writer, indent string, record []field) {
	for _, fl := range record {
		value := plain(fl.value)
		if value == "" {
			value = "N/A"
		}
		fmt.Fprintf(w, "%s%s: %s\n", indent, title(fl.key), value)
	}
}
