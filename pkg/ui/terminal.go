// Package ui prints command results to the terminal. Colors are applied
// only when the output is a color-capable terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Banner is printed at the top of long-running commands
const Banner = `
  ┌─┐┬ ┬┌─┐┌─┐┬─┐┌─┐┌─┐┌─┐┬─┐
   │ ││││└─┐│  ├┬┘├─┤├─┘├┤ ├┬┘
   ┴ └┴┘└─┘└─┘┴└─┴ ┴┴  └─┘┴└─
`

// Printer writes styled status lines and tables
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool

	label     lipgloss.Style
	value     lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
	warning   lipgloss.Style
	highlight lipgloss.Style
	header    lipgloss.Style
	cell      lipgloss.Style
	border    lipgloss.Style
}

// NewPrinter creates a printer whose color profile matches out
func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:       out,
		label:     r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		value:     r.NewStyle().Foreground(lipgloss.Color("3")),
		success:   r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		failure:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warning:   r.NewStyle().Foreground(lipgloss.Color("3")),
		highlight: r.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
		header:    r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true).Padding(0, 1),
		cell:      r.NewStyle().Padding(0, 1),
		border:    r.NewStyle().Faint(true),
	}
}

// SetQuiet suppresses everything except errors
func (p *Printer) SetQuiet(quiet bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quiet = quiet
}

func (p *Printer) println(s string, always bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiet && !always {
		return
	}
	fmt.Fprintln(p.out, s)
}

func withDetail(msg string, args []interface{}) string {
	if len(args) > 0 {
		return msg + ": " + fmt.Sprintf("%v", args[0])
	}
	return msg
}

// Error prints msg, and the first arg as detail, even in quiet mode
func (p *Printer) Error(msg string, args ...interface{}) {
	p.println(p.failure.Render(withDetail(msg, args)), true)
}

// Warning prints msg and an optional detail
func (p *Printer) Warning(msg string, args ...interface{}) {
	p.println(p.warning.Render(withDetail(msg, args)), false)
}

// Success prints msg
func (p *Printer) Success(msg string) {
	p.println(p.success.Render(msg), false)
}

// Info prints a label and its value
func (p *Printer) Info(label, value string) {
	p.println(p.label.Render(label)+": "+p.value.Render(value), false)
}

// Highlight prints msg emphasized
func (p *Printer) Highlight(msg string) {
	p.println(p.highlight.Render(msg), false)
}

// Line prints plain text
func (p *Printer) Line(format string, args ...interface{}) {
	p.println(fmt.Sprintf(format, args...), false)
}

// Table prints rows under headers
func (p *Printer) Table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(p.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.header
			}
			return p.cell
		})
	p.println(t.Render(), false)
}

var std = NewPrinter(os.Stdout)

// SetOutput redirects the package-level printer
func SetOutput(w io.Writer) {
	quiet := std.quiet
	std = NewPrinter(w)
	std.quiet = quiet
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(quiet bool) { std.SetQuiet(quiet) }

// PrintBanner prints the banner
func PrintBanner() { std.Highlight(Banner) }

// PrintError prints an error message and an optional detail
func PrintError(msg string, args ...interface{}) { std.Error(msg, args...) }

// PrintWarning prints a warning and an optional detail
func PrintWarning(msg string, args ...interface{}) { std.Warning(msg, args...) }

// PrintSuccess prints a success message
func PrintSuccess(msg string) { std.Success(msg) }

// PrintInfo prints a label and its value
func PrintInfo(label, value string) { std.Info(label, value) }

// PrintHighlight prints an emphasized message
func PrintHighlight(msg string) { std.Highlight(msg) }

// PrintLine prints plain text
func PrintLine(format string, args ...interface{}) { std.Line(format, args...) }

// PrintTable prints rows under headers
func PrintTable(headers []string, rows [][]string) { std.Table(headers, rows) }
