package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a formatted, multi-part CLI message
type Message struct {
	Level       Level
	Context     string // short upper-case heading, e.g. "ENTITY NOT FOUND"
	Problem     string
	Details     []string
	Suggestions []string
	Hints       []string // follow-up commands
	NoColor     bool
}

// Format renders m.
//
//	✗ ENTITY NOT FOUND: dataste
//	   no entity named "dataste"
//
//	   Did you mean: dataset?
//
//	   → metagraph entities
func (m Message) Format() string {
	var b strings.Builder

	var head, body *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		head, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "!"
	case LevelInfo:
		head, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "i"
	default:
		head, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "✗"
	}
	hint := color.New(color.FgCyan)
	suggest := color.New(color.FgYellow)
	if m.NoColor {
		for _, c := range []*color.Color{head, body, hint, suggest} {
			c.DisableColor()
		}
	}

	if m.Context != "" {
		head.Fprintf(&b, "%s %s\n", symbol, m.Context)
		if m.Problem != "" {
			body.Fprintf(&b, "   %s\n", m.Problem)
		}
	} else {
		head.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	for _, d := range m.Details {
		fmt.Fprintf(&b, "   - %s\n", d)
	}

	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		suggest.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range m.Hints {
			hint.Fprintf(&b, "   → %s\n", h)
		}
	}
	return b.String()
}

// Write prints m to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// NotFound describes a missing aspect or entity, with near-miss suggestions
func NotFound(kind, name string, known []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     strings.ToUpper(kind) + " NOT FOUND",
		Problem:     fmt.Sprintf("no %s named %q", kind, name),
		Suggestions: Suggest(name, known, 3),
		Hints:       []string{"List them: metagraph " + plural(kind)},
		NoColor:     noColor,
	}
}

// Success renders a green check line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess prints a success line to w
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, Success(message, noColor))
}

func plural(kind string) string {
	if stem, ok := strings.CutSuffix(kind, "y"); ok {
		return stem + "ies"
	}
	return kind + "s"
}
