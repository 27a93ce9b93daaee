// Package progress renders delegation progress on the diagnostic stream:
// a spinner while the child runs, one line per tool invocation, raw child
// stderr passed through as it arrives, and a final completion marker.
// Nothing here ever writes to stdout.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	defaultWidth = 100
	toolPrefix   = "  → "
	tickInterval = 100 * time.Millisecond
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Options control rendering.
type Options struct {
	// Quiet hides the spinner and tool lines. Passthrough stderr, warnings
	// and the completion marker are still written.
	Quiet bool
	// TTY enables the in-place spinner.
	TTY bool
	// Width bounds tool lines; zero means defaultWidth.
	Width int
	// Color selects ANSI colors for markers.
	Color bool
}

// Summary is what the completion marker reports.
type Summary struct {
	Duration  time.Duration
	TimedOut  bool
	Succeeded bool
	ExitCode  int
	Cost      float64
	HasCost   bool
	Turns     int
	SessionID string
}

// Reporter serializes all diagnostic output for one execution.
type Reporter struct {
	mu    sync.Mutex
	out   *termenv.Output
	opts  Options
	label string
	start time.Time
	frame int
	drawn bool
	// midLine is set while passthrough output has not ended its line.
	midLine bool

	stop chan struct{}
	done chan struct{}
}

// New returns a Reporter writing to w.
func New(w io.Writer, opts Options) *Reporter {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	profile := termenv.Ascii
	if opts.Color {
		profile = termenv.ANSI
	}
	return &Reporter{
		out:  termenv.NewOutput(w, termenv.WithProfile(profile)),
		opts: opts,
	}
}

// ForStderr returns a Reporter for os.Stderr, enabling the spinner and
// colors only when stderr is a terminal.
func ForStderr(quiet bool) *Reporter {
	fd := os.Stderr.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	width := defaultWidth
	if tty {
		if w, _, err := term.GetSize(int(fd)); err == nil && w > 0 {
			width = w
		}
	}
	r := New(os.Stderr, Options{Quiet: quiet, TTY: tty, Width: width})
	if tty {
		r.out = termenv.NewOutput(os.Stderr, termenv.WithProfile(termenv.NewOutput(os.Stderr).EnvColorProfile()))
	}
	return r
}

// Start shows a spinner labelled label until Stop. It is a no-op when
// quiet or not attached to a terminal.
func (r *Reporter) Start(label string) {
	r.mu.Lock()
	r.label = label
	r.start = time.Now()
	if r.opts.Quiet || !r.opts.TTY || r.stop != nil {
		r.mu.Unlock()
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	r.stop, r.done = stop, done
	r.drawLocked()
	r.mu.Unlock()

	go r.spin(stop, done)
}

func (r *Reporter) spin(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.mu.Lock()
			r.frame++
			r.drawLocked()
			r.mu.Unlock()
		}
	}
}

// Stop removes the spinner. Safe to call more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	r.mu.Lock()
	r.clearLocked()
	r.mu.Unlock()
}

// Tool prints one tool progress line, clipped to the terminal width.
func (r *Reporter) Tool(line string) {
	if r.opts.Quiet || line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
	r.endLineLocked()
	max := r.opts.Width - runewidth.StringWidth(toolPrefix)
	if max < 10 {
		max = 10
	}
	fmt.Fprintln(r.out, toolPrefix+runewidth.Truncate(oneLine(line), max, "…"))
	r.drawLocked()
}

// Passthrough writes raw child stderr, clearing the spinner first so the
// two never share a line.
func (r *Reporter) Passthrough(p []byte) {
	if len(p) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
	_, _ = r.out.Write(p)
	r.midLine = p[len(p)-1] != '\n'
	r.drawLocked()
}

// Warn prints a warning line.
func (r *Reporter) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
	r.endLineLocked()
	msg := r.out.String("warning:").Foreground(r.out.Color("3")).String()
	fmt.Fprintf(r.out, "%s %s\n", msg, fmt.Sprintf(format, args...))
	r.drawLocked()
}

// Done stops the spinner and prints the completion marker.
func (r *Reporter) Done(s Summary) {
	r.Stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLineLocked()
	fmt.Fprintln(r.out, r.marker(s))
}

// Marker renders the completion line for s.
func Marker(s Summary) string {
	return New(io.Discard, Options{}).marker(s)
}

func (r *Reporter) marker(s Summary) string {
	var head string
	switch {
	case s.TimedOut:
		head = r.out.String("⏱ timed out after " + FormatSeconds(s.Duration)).Foreground(r.out.Color("3")).String()
	case s.Succeeded:
		head = r.out.String("✓ completed in " + FormatSeconds(s.Duration)).Foreground(r.out.Color("2")).String()
	default:
		head = r.out.String(fmt.Sprintf("✗ completed in %s (exit %d)", FormatSeconds(s.Duration), s.ExitCode)).Foreground(r.out.Color("1")).String()
	}
	parts := []string{head}
	if s.HasCost {
		parts = append(parts, FormatCost(s.Cost))
	}
	if s.Turns > 0 {
		parts = append(parts, fmt.Sprintf("%d turns", s.Turns))
	}
	if s.SessionID != "" {
		parts = append(parts, "session "+s.SessionID)
	}
	return strings.Join(parts, " · ")
}

// FormatSeconds renders d as whole or tenth seconds with an "s" suffix.
func FormatSeconds(d time.Duration) string {
	if d >= 10*time.Second {
		return fmt.Sprintf("%ds", int(d.Round(time.Second)/time.Second))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatCost renders a USD amount with cent precision for larger sums and
// four decimals for small ones.
func FormatCost(cost float64) string {
	if cost >= 1 {
		return fmt.Sprintf("$%.2f", cost)
	}
	return fmt.Sprintf("$%.4f", cost)
}

func (r *Reporter) drawLocked() {
	if r.stop == nil || r.midLine {
		return
	}
	frame := spinnerFrames[r.frame%len(spinnerFrames)]
	elapsed := FormatSeconds(time.Since(r.start))
	line := runewidth.Truncate(fmt.Sprintf("%s %s (%s)", frame, r.label, elapsed), r.opts.Width-1, "…")
	fmt.Fprint(r.out, "\r"+line)
	r.drawn = true
}

func (r *Reporter) clearLocked() {
	if !r.drawn {
		return
	}
	fmt.Fprint(r.out, "\r")
	r.out.ClearLine()
	r.drawn = false
}

// endLineLocked terminates an unfinished passthrough line so our own output
// starts on a fresh line.
func (r *Reporter) endLineLocked() {
	if !r.midLine {
		return
	}
	fmt.Fprintln(r.out)
	r.midLine = false
}

func oneLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
