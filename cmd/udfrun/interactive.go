package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-udf/cql"
	"github.com/wippyai/wasm-udf/host"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#1F6FEB")).
			Padding(0, 1)

	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	cqlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#1F6FEB"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type view int

const (
	viewFunctions view = iota
	viewArguments
	viewResult
)

type udfModel struct {
	err      error
	opts     options
	session  *session
	result   string
	inputs   []textinput.Model
	selected int
	focus    int
	view     view
}

type openedMsg struct {
	err     error
	session *session
}

type resultMsg struct {
	err    error
	result string
}

func newUDFModel(opts options) *udfModel {
	return &udfModel{opts: opts}
}

func (m *udfModel) Init() tea.Cmd {
	return func() tea.Msg {
		s, err := open(context.Background(), m.opts, "")
		return openedMsg{session: s, err: err}
	}
}

func (m *udfModel) current() *host.Func {
	return m.session.funcs[m.selected]
}

func (m *udfModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.view == viewArguments && msg.String() == "q" {
				break
			}
			if m.session != nil {
				m.session.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.view == viewFunctions && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.view == viewFunctions && m.session != nil && m.selected < len(m.session.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.view {
			case viewFunctions:
				if m.session == nil || len(m.session.funcs) == 0 {
					return m, nil
				}
				m.makeInputs()
				if len(m.inputs) == 0 {
					return m, m.call
				}
				m.view = viewArguments
			case viewArguments:
				return m, m.call
			case viewResult:
				m.reset()
			}

		case "tab", "shift+tab":
			if m.view == viewArguments && len(m.inputs) > 1 {
				m.inputs[m.focus].Blur()
				step := 1
				if msg.String() == "shift+tab" {
					step = len(m.inputs) - 1
				}
				m.focus = (m.focus + step) % len(m.inputs)
				m.inputs[m.focus].Focus()
			}

		case "esc":
			if m.view != viewFunctions {
				m.reset()
			}
		}

	case openedMsg:
		m.session, m.err = msg.session, msg.err

	case resultMsg:
		m.result, m.err = msg.result, msg.err
		m.view = viewResult
	}

	if m.view == viewArguments {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *udfModel) reset() {
	m.view = viewFunctions
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *udfModel) makeInputs() {
	fn := m.current()
	m.inputs = make([]textinput.Model, len(fn.Params))
	for i, p := range fn.Params {
		ti := textinput.New()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Placeholder = p.String()
		ti.Width = 48
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focus = 0
}

func (m *udfModel) call() tea.Msg {
	fn := m.current()
	args := make([]any, len(m.inputs))
	for i, in := range m.inputs {
		args[i] = parseField(fn.Params[i], in.Value())
	}
	result, err := m.session.module.Call(context.Background(), fn, args...)
	if err != nil {
		return resultMsg{err: err}
	}
	return resultMsg{result: cql.FormatLiteral(fn.Result, result)}
}

// parseField reads one argument field. "null" is null, JSON is decoded and
// anything else is taken as a raw string for the type to parse.
func parseField(t *cql.Type, s string) any {
	s = strings.TrimSpace(s)
	if s == "null" {
		return nil
	}
	if isText(t) {
		return s
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		return v
	}
	return s
}

func (m *udfModel) View() string {
	if m.err != nil && m.view != viewResult {
		return failStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.session == nil {
		return "Loading module..."
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("UDF Runner"))
	b.WriteString(" ")
	b.WriteString(m.opts.wasmFile)
	fmt.Fprintf(&b, " (ABI %d)\n\n", m.session.module.ABIVersion())

	if len(m.session.funcs) == 0 {
		b.WriteString("No functions declared. Pass -config or -func with -args and -returns.\n\n")
		b.WriteString(hintStyle.Render("q quit"))
		return b.String()
	}

	switch m.view {
	case viewFunctions:
		b.WriteString("Select a function:\n\n")
		for i, fn := range m.session.funcs {
			if i == m.selected {
				b.WriteString(cursorStyle.Render("> " + formatDecl(fn.Decl)))
			} else {
				b.WriteString("  " + styledDecl(fn.Decl))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("↑/↓ select • enter call • q quit"))

	case viewArguments:
		fn := m.current()
		fmt.Fprintf(&b, "Calling %s\n\n", nameStyle.Render(fn.Name))
		for i, in := range m.inputs {
			b.WriteString(in.View())
			b.WriteString(" ")
			b.WriteString(cqlStyle.Render(fn.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("tab next field • enter call • esc back"))

	case viewResult:
		fn := m.current()
		fmt.Fprintf(&b, "%s returned:\n\n", nameStyle.Render(fn.Name))
		if m.err != nil {
			b.WriteString(failStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(valueStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(hintStyle.Render("enter continue • q quit"))
	}
	return b.String()
}

func styledDecl(d host.Decl) string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = cqlStyle.Render(p.String())
	}
	return nameStyle.Render(d.Name) + "(" + strings.Join(params, ", ") + ") -> " + cqlStyle.Render(d.Result.String())
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newUDFModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
