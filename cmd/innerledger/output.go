package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

type field struct {
	Name  string
	Value interface{}
}

// render writes v as indented JSON or, in table mode, the fields as a two column table.
func (c *cli) render(w io.Writer, title string, v interface{}, fields []field) error {
	if c.jsonOutput() {
		return writeJSON(w, v)
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	for _, f := range fields {
		t.AppendRow(table.Row{f.Name, f.Value})
	}
	t.Render()
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
