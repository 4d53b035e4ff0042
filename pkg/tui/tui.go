// Package tui provides a terminal user interface for qybridge
package tui

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/qybridge/pkg/converter"
	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/pattern"
	"github.com/james-see/qybridge/pkg/validate"
)

// LCD-inspired color scheme
var (
	lcdBlue    = lipgloss.Color("#4FC3F7")
	lcdAmber   = lipgloss.Color("#FFB300")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lcdBlue).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	menuStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lcdBlue).
			Bold(true).
			PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().
			Foreground(lcdAmber).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lcdAmber)

	successStyle = lipgloss.NewStyle().
			Foreground(lcdBlue).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			MarginTop(1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lcdBlue).
			Padding(1, 2)
)

// State represents the current TUI state
type State int

const (
	StateMenu State = iota
	StateFilePicker
	StateWorking
	StateResult
)

// Action is what a menu item does with the picked file.
type Action int

const (
	ActionConvert Action = iota
	ActionMIDI
	ActionValidate
	ActionInfo
	ActionExit
)

// MenuItem represents a menu option
type MenuItem struct {
	Title       string
	Description string
	Action      Action
	Inputs      []string
	Target      pattern.Format
}

var menuItems = []MenuItem{
	{Title: "SYX → Q7P", Description: "Convert a QY70 style dump to a QY700 pattern file", Action: ActionConvert, Inputs: []string{".syx"}, Target: pattern.FormatRecord},
	{Title: "Q7P → SYX", Description: "Convert a QY700 pattern file to a QY70 style dump", Action: ActionConvert, Inputs: []string{".Q7P", ".q7p"}, Target: pattern.FormatTransport},
	{Title: "Export MIDI", Description: "Write the first section setup as a Standard MIDI File", Action: ActionMIDI, Inputs: []string{".syx", ".Q7P", ".q7p"}},
	{Title: "Validate", Description: "Check a file for structural problems", Action: ActionValidate, Inputs: []string{".syx", ".Q7P", ".q7p"}},
	{Title: "Info", Description: "Show tempo, sections and track mixer settings", Action: ActionInfo, Inputs: []string{".syx", ".Q7P", ".q7p"}},
	{Title: "Exit", Description: "Exit the application", Action: ActionExit},
}

// Options configures the conversions run from the TUI.
type Options struct {
	Converter *converter.Converter
	Template  []byte
	Strict    bool
	Logger    *log.Logger
}

// Model represents the TUI model
type Model struct {
	opts         Options
	state        State
	menuIndex    int
	filePicker   filepicker.Model
	spinner      spinner.Model
	selectedFile string
	item         MenuItem
	result       resultMsg
	width        int
	height       int
}

// resultMsg carries the outcome of the work done on a file.
type resultMsg struct {
	outputFile string
	fidelity   string
	findings   []validate.Finding
	summary    *pattern.Summary
	err        error
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick)
}

// New creates a new TUI model
func New(opts Options) Model {
	if opts.Converter == nil {
		opts.Converter = converter.Default(opts.Logger)
	}
	if opts.Template == nil {
		opts.Template = devices.DefaultTemplate()
	}

	fp := filepicker.New()
	fp.AllowedTypes = []string{".syx", ".Q7P", ".q7p"}
	fp.CurrentDirectory, _ = os.Getwd()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lcdBlue)

	return Model{
		opts:       opts,
		state:      StateMenu,
		filePicker: fp,
		spinner:    s,
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The file picker needs to see every message while it is open.
	if m.state == StateFilePicker {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.String() {
			case "esc":
				m.state = StateMenu
				return m, nil
			case "q", "ctrl+c":
				return m, tea.Quit
			}
		}

		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(msg)

		if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
			m.selectedFile = path
			m.state = StateWorking
			return m, tea.Batch(m.spinner.Tick, m.run(m.item, path))
		}

		return m, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filePicker.SetHeight(msg.Height - 10)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateMenu:
			return m.updateMenu(msg)
		case StateResult:
			return m.updateResult(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resultMsg:
		m.state = StateResult
		m.result = msg
		return m, nil
	}

	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "enter":
		m.item = menuItems[m.menuIndex]
		if m.item.Action == ActionExit {
			return m, tea.Quit
		}
		m.state = StateFilePicker
		m.filePicker.AllowedTypes = m.item.Inputs
		return m, m.filePicker.Init()
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.state = StateMenu
		m.result = resultMsg{}
		m.selectedFile = ""
		return m, nil
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) findings(data []byte) []validate.Finding {
	f := validate.Bytes(data)
	if m.opts.Strict {
		f = validate.Strict(f)
	}
	return f
}

// run does the work of item on path and reports a resultMsg.
func (m Model) run(item MenuItem, path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return resultMsg{err: err}
		}

		findings := m.findings(data)
		if item.Action == ActionValidate {
			return resultMsg{findings: findings}
		}
		if validate.HasErrors(findings) {
			return resultMsg{findings: findings, err: fmt.Errorf("%d validation errors", validate.Count(findings, validate.ERROR))}
		}

		base := strings.TrimSuffix(path, filepath.Ext(path))
		switch item.Action {
		case ActionInfo:
			p, err := m.opts.Converter.Read(data)
			if err != nil {
				return resultMsg{err: err}
			}
			s := pattern.Summarize(p)
			return resultMsg{summary: &s}

		case ActionMIDI:
			p, err := m.opts.Converter.Read(data)
			if err != nil {
				return resultMsg{err: err}
			}
			out := base + ".mid"
			if err := converter.NewMIDIConverter().WriteMIDIFile(p, 0, out); err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{outputFile: out}

		default:
			out := base + item.Target.Extension()
			res, err := m.opts.Converter.ConvertFile(path, out, m.opts.Template)
			if err != nil {
				return resultMsg{err: err}
			}
			return resultMsg{outputFile: out, fidelity: res.Fidelity, findings: findings}
		}
	}
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	switch m.state {
	case StateMenu:
		s.WriteString(m.viewMenu())
	case StateFilePicker:
		s.WriteString(m.viewFilePicker())
	case StateWorking:
		s.WriteString(m.viewWorking())
	case StateResult:
		s.WriteString(m.viewResult())
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render("↑/↓: navigate • enter: select • q: quit"))

	return s.String()
}

func (m Model) viewMenu() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" SELECT ACTION "))
	s.WriteString("\n\n")

	for i, item := range menuItems {
		if i == m.menuIndex {
			s.WriteString(selectedStyle.Render(fmt.Sprintf("▸ %s", item.Title)))
			s.WriteString("\n")
			s.WriteString(lipgloss.NewStyle().Foreground(lcdAmber).PaddingLeft(4).Render(item.Description))
		} else {
			s.WriteString(menuStyle.Render(fmt.Sprintf("  %s", item.Title)))
		}
		s.WriteString("\n")
	}

	return boxStyle.Render(s.String())
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf(" %s: SELECT FILE ", strings.ToUpper(m.item.Title))))
	s.WriteString("\n\n")
	s.WriteString(m.filePicker.View())
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("esc: back to menu"))

	return s.String()
}

func (m Model) viewWorking() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render(" WORKING "))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("%s Reading %s...\n", m.spinner.View(), filepath.Base(m.selectedFile)))
	s.WriteString(statusStyle.Render("  " + m.item.Title))

	return boxStyle.Render(s.String())
}

func renderFindings(findings []validate.Finding) string {
	var s strings.Builder
	for _, f := range findings {
		line := f.String()
		switch f.Severity {
		case validate.ERROR:
			line = errorStyle.Render(line)
		case validate.WARN:
			line = warnStyle.Render(line)
		default:
			line = menuStyle.Render(line)
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	return s.String()
}

func renderSummary(sum *pattern.Summary) string {
	var s strings.Builder
	if sum.Name != "" {
		s.WriteString(fmt.Sprintf("Name:  %s\n", sum.Name))
	}
	s.WriteString(fmt.Sprintf("Tempo: %.1f BPM  %s  (%s)\n", sum.Tempo, sum.TimeSignature, sum.Format))
	for _, sec := range sum.Sections {
		if !sec.Active {
			continue
		}
		s.WriteString(statusStyle.Render(fmt.Sprintf("%s  %d bars", sec.Name, sec.Bars)))
		s.WriteString("\n")
		for _, tr := range sec.Tracks {
			s.WriteString(fmt.Sprintf("  %-5s ch%-2d vol %3d pan %-4s rev %3d cho %3d  %s\n",
				tr.Name, tr.Channel, tr.Volume, tr.Pan, tr.Reverb, tr.Chorus, tr.Voice))
		}
	}
	return s.String()
}

func (m Model) viewResult() string {
	var s strings.Builder
	r := m.result

	switch {
	case r.err != nil:
		s.WriteString(titleStyle.Render(" ERROR "))
		s.WriteString("\n\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s failed: %s", m.item.Title, r.err.Error())))
		s.WriteString("\n\n")
		s.WriteString(renderFindings(r.findings))
	case r.summary != nil:
		s.WriteString(titleStyle.Render(" INFO "))
		s.WriteString("\n\n")
		s.WriteString(renderSummary(r.summary))
	case m.item.Action == ActionValidate:
		s.WriteString(titleStyle.Render(" VALIDATION "))
		s.WriteString("\n\n")
		if validate.HasErrors(r.findings) {
			s.WriteString(errorStyle.Render("✗ File has errors"))
		} else {
			s.WriteString(successStyle.Render("✓ File is valid"))
		}
		s.WriteString("\n\n")
		s.WriteString(renderFindings(r.findings))
	default:
		s.WriteString(titleStyle.Render(" SUCCESS "))
		s.WriteString("\n\n")
		s.WriteString(successStyle.Render("✓ Conversion complete!"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Input:  %s\n", filepath.Base(m.selectedFile)))
		s.WriteString(fmt.Sprintf("Output: %s", filepath.Base(r.outputFile)))
		if r.fidelity != "" {
			s.WriteString(fmt.Sprintf("\nFidelity: %s", r.fidelity))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Press enter to continue"))

	return boxStyle.Render(s.String())
}

func asciiLogo() string {
	logo := `
   ___  _   _ ____  ____  ___ ____   ____ _____
  / _ \| | | | __ )|  _ \|_ _|  _ \ / ___| ____|
 | | | | |_| |  _ \| |_) || || | | | |  _|  _|
 | |_| |\__, | |_) |  _ < | || |_| | |_| | |___
  \__\_\|____/____/|_| \_\___|____/ \____|_____|
`
	return lipgloss.NewStyle().Foreground(lcdBlue).Render(logo)
}

// Run starts the TUI application
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
