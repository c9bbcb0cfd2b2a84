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

// Message describes a user-facing diagnostic
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// Format renders a diagnostic:
//
//	✗ ELEMENT NOT FOUND: shop.OrderServce
//
//	   Did you mean: shop.OrderService?
//
//	   → List elements: metatags inspect <model> --match '**'
func (m Message) Format() string {
	var b strings.Builder

	var head *color.Color
	var symbol string
	switch m.Level {
	case LevelWarning:
		head, symbol = color.New(color.FgYellow, color.Bold), "!"
	case LevelInfo:
		head, symbol = color.New(color.FgCyan, color.Bold), "i"
	default:
		head, symbol = color.New(color.FgRed, color.Bold), "✗"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if m.NoColor {
		head.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if m.Context != "" {
		head.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		head.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	if len(m.Hints) > 0 {
		b.WriteString("\n")
		for _, hint := range m.Hints {
			cyan.Fprintf(&b, "   → %s\n", hint)
		}
	}
	return b.String()
}

// Write writes the formatted message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// NotFound reports an unknown element or tag type name with close matches
// among candidates
func NotFound(kind, name string, candidates []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     kind + " not found",
		Problem:     name,
		Suggestions: FindSimilar(name, candidates, 0, 0),
		Hints:       []string{"List elements: metatags inspect <model> --match '**'"},
		NoColor:     noColor,
	}
}

// Success formats a success line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// Warning formats a warning line
func Warning(message string, noColor bool) string {
	return Message{Level: LevelWarning, Problem: message, NoColor: noColor}.Format()
}
