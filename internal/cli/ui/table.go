// Package ui renders CLI output: aligned tables, key/value blocks and
// colored status messages.
package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows under bold column headers, aligned on display width
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{w: w, headers: headers, noColor: noColor}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len reports the number of rows added
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table. A table without rows prints "(none)" under the
// header so empty results are visible.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			widths[i] = max(widths[i], utf8.RuneCountInString(row[i]))
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if t.noColor {
		bold.DisableColor()
		gray.DisableColor()
	}

	t.line(widths, t.headers, bold)
	rule := make([]string, len(widths))
	for i, n := range widths {
		rule[i] = strings.Repeat("─", n)
	}
	t.line(widths, rule, gray)

	if len(t.rows) == 0 {
		gray.Fprintln(t.w, "(none)")
		return
	}
	for _, row := range t.rows {
		t.line(widths, row, nil)
	}
}

func (t *Table) line(widths []int, cells []string, c *color.Color) {
	var b strings.Builder
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i == len(widths)-1 {
			b.WriteString(cell)
			break
		}
		b.WriteString(padRight(cell, width))
		b.WriteString("  ")
	}
	out := strings.TrimRight(b.String(), " ")
	if c != nil {
		c.Fprintln(t.w, out)
		return
	}
	fmt.Fprintln(t.w, out)
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// KeyValueTable renders "key: value" lines with aligned values
type KeyValueTable struct {
	w       io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates an empty key/value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{w: w, noColor: noColor}
}

// AddRow appends a pair. Empty values are skipped.
func (t *KeyValueTable) AddRow(key, value string) {
	if value == "" {
		return
	}
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render writes the pairs
func (t *KeyValueTable) Render() {
	width := 0
	for _, k := range t.keys {
		width = max(width, utf8.RuneCountInString(k)+1)
	}
	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for i, k := range t.keys {
		cyan.Fprint(t.w, padRight(k+":", width))
		fmt.Fprintf(t.w, " %s\n", t.values[i])
	}
}

// Header renders a styled, underlined title
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		gray.DisableColor()
	}
	bold.Fprintln(w, title)
	gray.Fprintln(w, strings.Repeat("─", utf8.RuneCountInString(title)))
}
