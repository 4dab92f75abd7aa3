// Package trace implements vcsgit.Tracer: a record of every git
// subprocess invocation the gateway makes, written to stderr (styled
// when the terminal supports it) and, optionally, to a rotated log
// file.
package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	durStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Tracer writes one line per subprocess invocation.
type Tracer struct {
	stderr   io.Writer
	fileOut  io.Writer
	colorize bool
}

// New builds a Tracer. If logFile is non-empty, trace lines are also
// appended there through a size-rotated writer. enabled gates whether
// Trace does anything at all, so a disabled tracer costs nothing beyond
// the interface call.
func New(enabled bool, logFile string) *Tracer {
	if !enabled {
		return nil
	}
	t := &Tracer{
		stderr:   os.Stderr,
		colorize: isColorTerminal(os.Stderr),
	}
	if logFile != "" {
		t.fileOut = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return t
}

func isColorTerminal(f *os.File) bool {
	if !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return termenv.NewOutput(f).Profile != termenv.Ascii
}

// Trace implements vcsgit.Tracer.
func (t *Tracer) Trace(args []string, dir string, dur time.Duration, err error) {
	if t == nil {
		return
	}
	line := "git " + strings.Join(args, " ")
	plain := fmt.Sprintf("[%s] %s (%s)", dir, line, dur)
	if err != nil {
		plain += " FAILED: " + err.Error()
	}

	if t.fileOut != nil {
		fmt.Fprintln(t.fileOut, plain)
	}

	if !t.colorize {
		fmt.Fprintln(t.stderr, plain)
		return
	}

	rendered := cmdStyle.Render(line) + " " + durStyle.Render("("+dir+", "+dur.String()+")")
	if err != nil {
		rendered += " " + errStyle.Render("FAILED: "+err.Error())
	}
	fmt.Fprintln(t.stderr, rendered)
}
