package format

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// TableFormatter writes records as aligned columns
type TableFormatter struct {
	useColors bool
}

// NewTableFormatter creates a new table formatter
func NewTableFormatter(useColors bool) *TableFormatter {
	return &TableFormatter{useColors: useColors}
}

// Format writes data as a table. A single record is shown vertically, a
// slice of records one per row; strings are written as is.
func (f *TableFormatter) Format(w io.Writer, data interface{}) error {
	if data == nil {
		fmt.Fprintln(w, "No data to display")
		return nil
	}
	if s, ok := data.(string); ok {
		fmt.Fprintln(w, s)
		return nil
	}

	if items, ok := rows(data); ok {
		return f.formatRows(w, items)
	}
	if record, ok := fields(data); ok {
		return f.formatRecord(w, record)
	}
	fmt.Fprintln(w, plain(data))
	return nil
}

func (f *TableFormatter) formatRecord(w io.Writer, record []field) error {
	table := f.newTable(w, []string{"Property", "Value"})
	for _, fl := range record {
		table.Append([]string{title(fl.key), f.value(fl.value)})
	}
	table.Render()
	return nil
}

func (f *TableFormatter) formatRows(w io.Writer, items []interface{}) error {
	if len(items) == 0 {
		fmt.Fprintln(w, "No data to display")
		return nil
	}

	first, ok := fields(items[0])
	if !ok {
		table := f.newTable(w, []string{"Value"})
		for _, item := range items {
			table.Append([]string{f.value(item)})
		}
		table.Render()
		return nil
	}

	headers := make([]string, len(first))
	keys := make([]string, len(first))
	for i, fl := range first {
		keys[i] = fl.key
		headers[i] = title(fl.key)
	}

	table := f.newTable(w, headers)
	for _, item := range items {
		record, _ := fields(item)
		byKey := make(map[string]interface{}, len(record))
		for _, fl := range record {
			byKey[fl.key] = fl.value
		}
		values := make([]string, len(keys))
		for i, key := range keys {
			values[i] = f.value(byKey[key])
		}
		table.Append(values)
	}
	table.Render()
	return nil
}

func (f *TableFormatter) newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)

	if f.useColors {
		colors := make([]tablewriter.Colors, len(headers))
		for i := range colors {
			colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiBlueColor}
		}
		table.SetHeaderColor(colors...)
	}
	return table
}

func (f *TableFormatter) value(value interface{}) string {
	if b, ok := value.(bool); ok {
		if !f.useColors {
			return strconv.FormatBool(b)
		}
		if b {
			return color.GreenString("true")
		}
		return color.RedString("false")
	}
	return plain(value)
}
