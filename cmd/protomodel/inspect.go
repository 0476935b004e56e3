package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Browse a payload interactively",
	Long: wrapString(`Open a terminal UI over a protobuf payload. Nested blocks can be expanded
and any block, or the whole payload, can be decoded as a catalog type.`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCatalog()
		if err != nil {
			return err
		}
		p := tea.NewProgram(newInspectModel(args[0], c), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

type inspectState int

const (
	stateBrowse inspectState = iota
	stateTypeName
	stateShowResult
)

type row struct {
	field *wireField
	depth int
}

type inspectModel struct {
	err      error
	cat      *catalog
	filename string
	data     []byte
	fields   []wireField
	rows     []row
	expanded map[int]bool
	result   string
	input    textinput.Model
	selected int
	state    inspectState
	loaded   bool
}

type loadedMsg struct {
	err    error
	data   []byte
	fields []wireField
}

type decodedMsg struct {
	err    error
	result string
}

func newInspectModel(filename string, c *catalog) *inspectModel {
	return &inspectModel{
		cat:      c,
		filename: filename,
		expanded: make(map[int]bool),
		state:    stateBrowse,
	}
}

func (m *inspectModel) Init() tea.Cmd {
	return m.loadInput
}

func (m *inspectModel) loadInput() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	fields, err := parseWire(data)
	return loadedMsg{data: data, fields: fields, err: err}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateTypeName {
			return m.updateTypeName(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.rows)-1 {
				m.selected++
			}

		case "enter", "right", "left":
			switch m.state {
			case stateBrowse:
				m.toggle()
			case stateShowResult:
				m.backToBrowse()
			}

		case "d":
			if m.state == stateBrowse && m.loaded {
				m.input = textinput.New()
				m.input.Placeholder = strings.Join(m.cat.names(), ", ")
				m.input.Prompt = "type: "
				m.input.Width = 40
				m.input.Focus()
				m.state = stateTypeName
				return m, textinput.Blink
			}

		case "esc":
			if m.state == stateShowResult {
				m.backToBrowse()
			}
		}

	case loadedMsg:
		m.loaded = true
		m.data = msg.data
		m.fields = msg.fields
		m.err = msg.err
		m.flatten()

	case decodedMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	return m, nil
}

func (m *inspectModel) updateTypeName(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.state = stateBrowse
		return m, nil
	case "enter":
		name := strings.TrimSpace(m.input.Value())
		payload := m.payload()
		return m, func() tea.Msg { return m.decode(name, payload) }
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *inspectModel) backToBrowse() {
	m.state = stateBrowse
	m.result = ""
	m.err = nil
}

// toggle expands or collapses the selected block.
func (m *inspectModel) toggle() {
	if m.selected >= len(m.rows) {
		return
	}
	f := m.rows[m.selected].field
	if len(f.Children) == 0 {
		return
	}
	m.expanded[f.Offset] = !m.expanded[f.Offset]
	m.flatten()
}

func (m *inspectModel) flatten() {
	m.rows = m.rows[:0]
	var walk func(fields []wireField, depth int)
	walk = func(fields []wireField, depth int) {
		for i := range fields {
			f := &fields[i]
			m.rows = append(m.rows, row{field: f, depth: depth})
			if m.expanded[f.Offset] {
				walk(f.Children, depth+1)
			}
		}
	}
	walk(m.fields, 0)
	if m.selected >= len(m.rows) {
		m.selected = max(len(m.rows)-1, 0)
	}
}

// payload returns the selected block, or the whole input when the
// selection is a scalar.
func (m *inspectModel) payload() []byte {
	if m.selected < len(m.rows) {
		if f := m.rows[m.selected].field; f.IsBlock() {
			return f.Raw
		}
	}
	return m.data
}

func (m *inspectModel) decode(name string, payload []byte) tea.Msg {
	t, err := m.cat.lookup(name)
	if err != nil {
		return decodedMsg{err: err}
	}
	v, err := m.cat.reg.DeserializeType(t, payload)
	if err != nil {
		return decodedMsg{err: err}
	}
	doc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return decodedMsg{err: err}
	}
	return decodedMsg{result: fmt.Sprintf("%s\n%s", typeStyle.Render(fmt.Sprintf("%T", v)), doc)}
}

func (m *inspectModel) View() string {
	if m.err != nil && m.state == stateBrowse && len(m.rows) == 0 {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return "Loading payload..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Wire Inspector"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString(helpStyle.Render(fmt.Sprintf(" (%d bytes)", len(m.data))))
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		for i, r := range m.rows {
			marker := "  "
			if len(r.field.Children) > 0 {
				marker = "+ "
				if m.expanded[r.field.Offset] {
					marker = "- "
				}
			}
			line := strings.Repeat("  ", r.depth) + marker + formatField(r.field, 0)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Input ends badly: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter expand • d decode as type • q quit"))

	case stateTypeName:
		b.WriteString(fmt.Sprintf("Decode %s\n\n", fieldStyle.Render(m.selectionLabel())))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter decode • esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Decoded %s:\n\n", fieldStyle.Render(m.selectionLabel())))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(valueStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *inspectModel) selectionLabel() string {
	if m.selected < len(m.rows) {
		if f := m.rows[m.selected].field; f.IsBlock() {
			return fmt.Sprintf("field #%d at @%04d", f.Num, f.Offset)
		}
	}
	return "whole payload"
}
