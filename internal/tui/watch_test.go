package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JonMunkholm/csvpreview/internal/preview"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

func newTestModel(t *testing.T, content string, opts ...Option) (*WatchModel, *preview.Previewer) {
	t.Helper()
	p := preview.NewPreviewer(preview.Deps{}, preview.WithDebounce(5*time.Millisecond))
	t.Cleanup(p.Close)

	opener := func(path string) (source.File, error) {
		return source.Bytes(path, []byte(content)), nil
	}
	m := NewWatchModel("data.csv", p, append([]Option{WithOpener(opener)}, opts...)...)
	return m, p
}

// drain feeds states to the model until a finished run arrives.
func drain(t *testing.T, m *WatchModel, runID uint64) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-m.states:
			m.Update(stateMsg(st))
			if st.RunID == runID && !st.Running {
				return
			}
		case <-timeout:
			t.Fatalf("run %d never finished", runID)
		}
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatchModel_ShowsPreview(t *testing.T) {
	m, _ := newTestModel(t, "name;age\nalice;30\n")

	m.reload()
	drain(t, m, 1)

	view := m.View()
	for _, want := range []string{"data.csv", "OK", "delimiter semicolon", "name", "alice"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if got := len(m.table.Rows()); got != 1 {
		t.Errorf("table rows = %d, want 1", got)
	}
}

func TestWatchModel_ShowsErrors(t *testing.T) {
	m, _ := newTestModel(t, "a,a\n1,2\n")

	m.reload()
	drain(t, m, 1)

	view := m.View()
	if !strings.Contains(view, "1 error(s)") || !strings.Contains(view, `have duplicate name "a"`) {
		t.Errorf("view missing errors:\n%s", view)
	}
}

func TestWatchModel_CycleDelimiter(t *testing.T) {
	m, p := newTestModel(t, "a,b\n1,2\n")

	m.reload()
	drain(t, m, 1)

	m.Update(key("tab"))
	if opts, _ := p.ParseOptions(); opts.Delimiter != "\t" {
		t.Errorf("after tab delimiter = %q, want tab", opts.Delimiter)
	}
	drain(t, m, 2)
	if got := m.State().Columns; len(got) != 1 || got[0] != "a,b" {
		t.Errorf("columns after tab = %v, want [a,b]", got)
	}

	m.Update(key("shift+tab"))
	m.Update(key("shift+tab"))
	if opts, _ := p.ParseOptions(); opts.Delimiter != "|" {
		t.Errorf("after shift+tab twice delimiter = %q, want |", opts.Delimiter)
	}
	if !strings.Contains(m.status, "pipe") {
		t.Errorf("status = %q", m.status)
	}
}

func TestWatchModel_Copy(t *testing.T) {
	var copied string
	m, _ := newTestModel(t, "a,,b\n1,2,3\n", WithClipboard(func(s string) error {
		copied = s
		return nil
	}))

	m.reload()
	drain(t, m, 1)

	_, cmd := m.Update(key("c"))
	msg := cmd()
	m.Update(msg)

	if !strings.Contains(copied, "error: Columns at positions [1] must not be blank") {
		t.Errorf("copied = %q", copied)
	}
	if m.status != "diagnostics copied to clipboard" {
		t.Errorf("status = %q", m.status)
	}

	m.copyClipboard = func(string) error { return errors.New("no clipboard") }
	_, cmd = m.Update(key("c"))
	m.Update(cmd())
	if !strings.Contains(m.status, "no clipboard") {
		t.Errorf("status = %q", m.status)
	}
}

func TestWatchModel_ReloadError(t *testing.T) {
	m, _ := newTestModel(t, "", WithOpener(func(string) (source.File, error) {
		return nil, errors.New("gone")
	}))

	cmd := m.reload()
	if cmd == nil {
		t.Fatal("reload should report the error")
	}
	m.Update(cmd())
	if !strings.Contains(m.status, "gone") {
		t.Errorf("status = %q", m.status)
	}
}

func TestWatchModel_Quit(t *testing.T) {
	m, _ := newTestModel(t, "a\n")

	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
