package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/scriptor/runtime"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

// maxEntries bounds the transcript kept on screen.
const maxEntries = 50

func newReplCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			// console output would tear the TUI, so it goes to the log
			opts := a.options(nil)
			opts.ConsoleToLog = true
			w, err := runtime.NewWorker(func() (*runtime.VM, error) {
				return runtime.New(ctx, opts)
			})
			if err != nil {
				return err
			}
			defer w.Close()

			p := tea.NewProgram(newReplModel(ctx, w), tea.WithOutput(a.stdout))
			_, err = p.Run()
			return err
		},
	}
}

type entry struct {
	err    error
	input  string
	output string
}

type replModel struct {
	ctx     context.Context
	worker  *runtime.Worker
	input   textinput.Model
	entries []entry
	history []string
	histIdx int
	busy    bool
}

type evalResultMsg struct {
	err    error
	input  string
	output string
}

func newReplModel(ctx context.Context, w *runtime.Worker) *replModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render("› ")
	ti.Placeholder = "expression"
	ti.Width = 80
	ti.Focus()

	return &replModel{ctx: ctx, worker: w, input: ti}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) eval(line string) tea.Cmd {
	return func() tea.Msg {
		out, err := evalLine(m.ctx, m.worker, line)
		return evalResultMsg{input: line, output: out, err: err}
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			if line == ".exit" {
				return m, tea.Quit
			}
			m.history = append(m.history, line)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			m.busy = true
			return m, m.eval(line)

		case "up":
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			} else {
				m.histIdx = len(m.history)
				m.input.SetValue("")
			}
			return m, nil
		}

	case evalResultMsg:
		m.busy = false
		m.entries = append(m.entries, entry{input: msg.input, output: msg.output, err: msg.err})
		if len(m.entries) > maxEntries {
			m.entries = m.entries[len(m.entries)-maxEntries:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("scriptor"))
	b.WriteString("\n\n")

	for _, e := range m.entries {
		b.WriteString(promptStyle.Render("› "))
		b.WriteString(inputStyle.Render(e.input))
		b.WriteString("\n")
		switch {
		case e.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", e.err)))
			b.WriteString("\n")
		case e.output != "":
			b.WriteString(resultStyle.Render(e.output))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.busy {
		b.WriteString(helpStyle.Render("evaluating…"))
	} else {
		b.WriteString(helpStyle.Render("enter eval • ↑/↓ history • .exit or ctrl+d quit"))
	}
	return b.String()
}
