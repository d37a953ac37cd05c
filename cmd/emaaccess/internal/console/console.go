// Package console is a speech engine and feedback player that write to a
// terminal instead of an audio device. Every request completes as soon as it
// is printed.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-access/core/speech"
	"github.com/muesli/reflow/wordwrap"
)

const defaultWidth = 72

type styles struct {
	engine  lipgloss.Style
	speech  lipgloss.Style
	earcon  lipgloss.Style
	control lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		engine:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")),
		speech:  lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
		earcon:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		control: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241")),
	}
}

// Writer serializes styled lines onto one output.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	width  int
	styles styles
}

type Option func(*Writer)

// WithWidth sets the column spoken text is wrapped at.
func WithWidth(width int) Option {
	return func(w *Writer) {
		if width > 0 {
			w.width = width
		}
	}
}

func NewWriter(out io.Writer, opts ...Option) *Writer {
	w := &Writer{out: out, width: defaultWidth, styles: defaultStyles()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) speak(engine, text string, params map[string]float64) {
	label := w.styles.engine.Render(engine + ":")
	indent := strings.Repeat(" ", lipgloss.Width(label)+1)

	wrapped := wordwrap.String(text, max(1, w.width-len(indent)))
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		lines[i] = w.styles.speech.Render(line)
		if i > 0 {
			lines[i] = indent + lines[i]
		}
	}

	suffix := ""
	if len(params) > 0 {
		suffix = " " + w.styles.control.Render(formatParams(params))
	}
	w.println(label + " " + strings.Join(lines, "\n") + suffix)
}

func (w *Writer) control(format string, args ...any) {
	w.println(w.styles.control.Render(fmt.Sprintf(format, args...)))
}

func (w *Writer) println(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, line)
}

func formatParams(params map[string]float64) string {
	parts := make([]string, 0, len(params))
	for _, name := range []string{"pitch", "rate", "volume", "pan"} {
		if value, ok := params[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.2g", name, value))
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Binding creates console engines under any name.
type Binding struct {
	writer *Writer
}

func NewBinding(writer *Writer) *Binding {
	return &Binding{writer: writer}
}

func (b *Binding) Initialize(_ context.Context, name string, listener speech.EngineListener) error {
	e := &engine{name: name, writer: b.writer, listener: listener}
	go listener.OnInitialized(name, e, nil)
	return nil
}

type engine struct {
	name     string
	writer   *Writer
	listener speech.EngineListener
}

func (e *engine) Speak(request speech.Request) error {
	params := make(map[string]float64, len(request.Params))
	for param, value := range request.Params {
		params[string(param)] = value
	}
	if request.Text != "" {
		e.writer.speak(e.name, request.Text, params)
	}
	go e.listener.OnUtteranceCompleted(request.UtteranceID, true)
	return nil
}

func (e *engine) Stop() error {
	e.writer.control("%s: stop", e.name)
	return nil
}

func (e *engine) StopAll() error {
	e.writer.control("%s: stop all", e.name)
	return nil
}

func (e *engine) SetPitch(pitch float64) error {
	e.writer.control("%s: pitch %.2g", e.name, pitch)
	return nil
}

func (e *engine) SetRate(rate float64) error {
	e.writer.control("%s: rate %.2g", e.name, rate)
	return nil
}

func (e *engine) Shutdown() error { return nil }

// Player prints earcons and haptics.
type Player struct {
	writer *Writer
}

func NewPlayer(writer *Writer) *Player {
	return &Player{writer: writer}
}

func (p *Player) PlayEarcon(id string, _, _ float64) {
	p.writer.println(p.writer.styles.earcon.Render("♪ " + id))
}

func (p *Player) PlayHaptic(id string) {
	p.writer.println(p.writer.styles.earcon.Render("~ " + id))
}
