// Package tui implements the interactive preview used by "csvpreview
// watch".
package tui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/JonMunkholm/csvpreview/internal/cli"
	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

// FileChangedMsg asks the model to re-read its file from disk.
type FileChangedMsg struct{}

type stateMsg preview.State

type closedMsg struct{}

type statusMsg string

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

const helpText = "tab/shift+tab delimiter • r reload • c copy diagnostics • ↑/↓ scroll • q quit"

// WatchModel shows the live preview of one file. Delimiter changes and
// reloads go through the Previewer; its states arrive as messages.
type WatchModel struct {
	path      string
	previewer *preview.Previewer

	states      <-chan preview.State
	unsubscribe func()

	openFile      func(string) (source.File, error)
	copyClipboard func(string) error

	state   preview.State
	table   table.Model
	spinner spinner.Model
	status  string
	width   int
}

// Option configures a WatchModel.
type Option func(*WatchModel)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(m *WatchModel) { m.copyClipboard = fn }
}

// WithOpener replaces how the file is opened on reload.
func WithOpener(fn func(string) (source.File, error)) Option {
	return func(m *WatchModel) { m.openFile = fn }
}

// NewWatchModel subscribes to p. The model loads path on Init.
func NewWatchModel(path string, p *preview.Previewer, opts ...Option) *WatchModel {
	states, unsubscribe := p.Subscribe()

	t := table.New(table.WithFocused(true), table.WithHeight(preview.MaxSampleRows+1))
	s := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := &WatchModel{
		path:          path,
		previewer:     p,
		states:        states,
		unsubscribe:   unsubscribe,
		openFile:      source.Path,
		copyClipboard: clipboard.WriteAll,
		table:         t,
		spinner:       s,
		width:         80,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads the file and starts listening for states.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.waitForState(), m.spinner.Tick, m.reload())
}

// Update handles keys, window changes and preview states.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.unsubscribe()
			return m, tea.Quit
		case "tab":
			m.cycleDelimiter(1)
			return m, nil
		case "shift+tab":
			m.cycleDelimiter(-1)
			return m, nil
		case "r":
			return m, m.reload()
		case "c":
			return m, m.copyDiagnostics()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case FileChangedMsg:
		return m, m.reload()

	case stateMsg:
		m.setState(preview.State(msg))
		return m, m.waitForState()

	case closedMsg:
		return m, tea.Quit

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the header, diagnostics, sample table and help line.
func (m *WatchModel) View() string {
	var b strings.Builder
	st := m.state

	header := titleStyle.Render(m.path)
	switch {
	case st.Running:
		header += "  " + m.spinner.View() + " previewing"
	case st.RunID == 0:
		header += "  " + dimStyle.Render("waiting")
	case st.Valid():
		header += "  " + okStyle.Render("OK")
	default:
		header += "  " + errorStyle.Render(fmt.Sprintf("%d error(s)", len(st.Errors)))
	}
	b.WriteString(header + "\n")

	details := []string{humanize.IBytes(uint64(max(st.FileSize, 0)))}
	if st.Options.Delimiter != "" {
		details = append(details, "delimiter "+cli.DelimiterName(st.Options.Delimiter))
	}
	if st.Encoding != "" {
		details = append(details, "encoding "+st.Encoding)
	}
	b.WriteString(dimStyle.Render(strings.Join(details, " · ")) + "\n\n")

	wrap := max(m.width-2, 20)
	for _, e := range st.Errors {
		b.WriteString(errorStyle.Render(wordwrap.String("✗ "+e, wrap)) + "\n")
	}
	for _, w := range st.Warnings {
		b.WriteString(warnStyle.Render(wordwrap.String("! "+w, wrap)) + "\n")
	}
	if len(st.Errors)+len(st.Warnings) > 0 {
		b.WriteString("\n")
	}

	if len(st.Columns) > 0 {
		b.WriteString(m.table.View() + "\n")
	}

	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(dimStyle.Render(helpText))
	return b.String()
}

func (m *WatchModel) waitForState() tea.Cmd {
	states := m.states
	return func() tea.Msg {
		st, ok := <-states
		if !ok {
			return closedMsg{}
		}
		return stateMsg(st)
	}
}

// reload re-reads the file from disk and hands it to the previewer.
func (m *WatchModel) reload() tea.Cmd {
	f, err := m.openFile(m.path)
	if err != nil {
		return func() tea.Msg { return statusMsg(fmt.Sprintf("cannot open %s: %v", m.path, err)) }
	}
	m.previewer.SetFile(f)
	return nil
}

func (m *WatchModel) cycleDelimiter(step int) {
	options := preview.DelimiterOptions()
	opts, _ := m.previewer.ParseOptions()

	idx := -1
	for i, o := range options {
		if o.Value == opts.Delimiter {
			idx = i
			break
		}
	}

	n := len(options)
	var next int
	switch {
	case idx < 0 && step < 0:
		next = n - 1
	case idx < 0:
		next = 0
	default:
		next = ((idx+step)%n + n) % n
	}

	opts.Delimiter = options[next].Value
	m.previewer.SetParseOptions(opts)
	m.status = "delimiter: " + options[next].Label
}

func (m *WatchModel) copyDiagnostics() tea.Cmd {
	text := cli.Diagnostics(m.path, m.state.Result)
	copyFn := m.copyClipboard
	return func() tea.Msg {
		if err := copyFn(text); err != nil {
			return statusMsg("copy failed: " + err.Error())
		}
		return statusMsg("diagnostics copied to clipboard")
	}
}

func (m *WatchModel) setState(st preview.State) {
	m.state = st
	if st.Running {
		return
	}

	columns := make([]table.Column, len(st.Columns))
	for i, col := range st.Columns {
		width := len(col)
		for _, row := range st.Rows {
			width = max(width, len(preview.FormatCell(row[i])))
		}
		columns[i] = table.Column{
			Title: truncate.StringWithTail(col, cli.MaxCellWidth, "…"),
			Width: min(width, cli.MaxCellWidth),
		}
	}

	rows := make([]table.Row, len(st.Rows))
	for i, row := range st.Rows {
		cells := make(table.Row, len(row))
		for j, cell := range row {
			cells[j] = truncate.StringWithTail(preview.FormatCell(cell), cli.MaxCellWidth, "…")
		}
		rows[i] = cells
	}

	// Rows must match the column count whenever columns change.
	m.table.SetRows(nil)
	m.table.SetColumns(columns)
	m.table.SetRows(rows)
	m.table.GotoTop()
}

// State returns the last state the model received.
func (m *WatchModel) State() preview.State {
	return m.state
}
