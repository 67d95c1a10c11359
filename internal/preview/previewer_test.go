package preview

import (
	"context"
	"io"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/csvpreview/internal/csvstream"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

const testDebounce = 20 * time.Millisecond

// countingParser counts Parse calls and delegates to the real parser.
type countingParser struct {
	calls atomic.Int32
}

func (c *countingParser) Parse(ctx context.Context, r io.Reader, cfg csvstream.Config) error {
	c.calls.Add(1)
	return csvstream.Parse(ctx, r, cfg)
}

// blockingParser blocks its first call until cancelled.
type blockingParser struct {
	calls   atomic.Int32
	started chan struct{}
}

func (b *blockingParser) Parse(ctx context.Context, r io.Reader, cfg csvstream.Config) error {
	if b.calls.Add(1) == 1 {
		close(b.started)
		<-ctx.Done()
		return ctx.Err()
	}
	return csvstream.Parse(ctx, r, cfg)
}

func waitFor(t *testing.T, p *Previewer, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := p.Snapshot(); cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met; last state %+v", p.Snapshot())
	return State{}
}

func finishedRun(id uint64) func(State) bool {
	return func(st State) bool { return st.RunID == id && !st.Running }
}

func TestPreviewer_SetFileRuns(t *testing.T) {
	parser := &countingParser{}
	p := NewPreviewer(Deps{Parser: parser}, WithDebounce(testDebounce))
	defer p.Close()

	p.SetFile(source.Bytes("people.csv", []byte("name,age\nalice,30\n")))

	st := waitFor(t, p, finishedRun(1))
	if want := []string{"name", "age"}; !reflect.DeepEqual(st.Columns, want) {
		t.Errorf("Columns = %v, want %v", st.Columns, want)
	}
	if st.FileName != "people.csv" {
		t.Errorf("FileName = %q", st.FileName)
	}
	if got := parser.calls.Load(); got != 1 {
		t.Errorf("parser calls = %d, want 1", got)
	}
}

func TestPreviewer_FirstOptionsDoNotTrigger(t *testing.T) {
	parser := &countingParser{}
	p := NewPreviewer(Deps{Parser: parser}, WithDebounce(testDebounce))
	defer p.Close()

	p.SetParseOptions(ParseOptions{Delimiter: ";"})
	time.Sleep(5 * testDebounce)

	if got := parser.calls.Load(); got != 0 {
		t.Errorf("parser calls = %d, want 0", got)
	}
	if got, ok := p.ParseOptions(); !ok || got.Delimiter != ";" {
		t.Errorf("ParseOptions() = %+v, %v", got, ok)
	}
}

func TestPreviewer_OptionChangeTriggers(t *testing.T) {
	parser := &countingParser{}
	p := NewPreviewer(Deps{Parser: parser}, WithDebounce(testDebounce))
	defer p.Close()

	p.SetFile(source.Bytes("data.csv", []byte("a;b\n1;2\n")))
	waitFor(t, p, finishedRun(1))

	// Same value as detected: no run.
	p.SetParseOptions(ParseOptions{Delimiter: ";"})
	time.Sleep(5 * testDebounce)
	if got := parser.calls.Load(); got != 1 {
		t.Fatalf("parser calls after unchanged options = %d, want 1", got)
	}

	p.SetParseOptions(ParseOptions{Delimiter: ","})
	st := waitFor(t, p, finishedRun(2))
	if want := []string{"a;b"}; !reflect.DeepEqual(st.Columns, want) {
		t.Errorf("Columns = %v, want %v", st.Columns, want)
	}
	if st.Options.Delimiter != "," {
		t.Errorf("Options.Delimiter = %q, want %q", st.Options.Delimiter, ",")
	}
}

func TestPreviewer_DetectedDelimiterSticks(t *testing.T) {
	parser := &countingParser{}
	p := NewPreviewer(Deps{Parser: parser}, WithDebounce(testDebounce))
	defer p.Close()

	p.SetFile(source.Bytes("data.csv", []byte("a;b\n1;2\n")))
	st := waitFor(t, p, finishedRun(1))

	opts, ok := p.ParseOptions()
	if !ok || opts.Delimiter != ";" {
		t.Fatalf("ParseOptions() = %+v, %v; want delimiter ;", opts, ok)
	}
	if !st.OptionsDefined {
		t.Error("OptionsDefined = false after detection")
	}

	// Detection alone must not start another run.
	time.Sleep(5 * testDebounce)
	if got := parser.calls.Load(); got != 1 {
		t.Errorf("parser calls = %d, want 1", got)
	}

	// Content where detection would pick a comma; the stored delimiter wins.
	p.SetFile(source.Bytes("other.csv", []byte("x,y\n1,2\n")))
	waitFor(t, p, finishedRun(2))
	if opts, _ := p.ParseOptions(); opts.Delimiter != ";" {
		t.Errorf("delimiter after re-run = %q, want %q", opts.Delimiter, ";")
	}
}

func TestPreviewer_Debounce(t *testing.T) {
	parser := &countingParser{}
	p := NewPreviewer(Deps{Parser: parser}, WithDebounce(50*time.Millisecond))
	defer p.Close()

	for i := 0; i < 5; i++ {
		p.SetFile(source.Bytes("burst.csv", []byte("a,b\n1,2\n")))
	}
	p.SetFile(source.Bytes("last.csv", []byte("a,b\n1,2\n")))

	st := waitFor(t, p, finishedRun(1))
	if st.FileName != "last.csv" {
		t.Errorf("FileName = %q, want last.csv", st.FileName)
	}

	time.Sleep(150 * time.Millisecond)
	if got := parser.calls.Load(); got != 1 {
		t.Errorf("parser calls = %d, want 1", got)
	}
}

func TestPreviewer_SupersededRunDiscarded(t *testing.T) {
	parser := &blockingParser{started: make(chan struct{})}
	p := NewPreviewer(Deps{Parser: parser}, WithDebounce(testDebounce))
	defer p.Close()

	p.SetFile(source.Bytes("slow.csv", []byte("slow\n1\n")))
	select {
	case <-parser.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}

	p.SetFile(source.Bytes("fast.csv", []byte("a,b\n1,2\n")))
	st := waitFor(t, p, finishedRun(2))

	if st.FileName != "fast.csv" {
		t.Errorf("FileName = %q, want fast.csv", st.FileName)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(st.Columns, want) {
		t.Errorf("Columns = %v, want %v", st.Columns, want)
	}

	time.Sleep(5 * testDebounce)
	if got := p.Snapshot().RunID; got != 2 {
		t.Errorf("RunID = %d, want 2", got)
	}
}

func TestPreviewer_Subscribe(t *testing.T) {
	p := NewPreviewer(Deps{}, WithDebounce(testDebounce))
	defer p.Close()

	ch, unsubscribe := p.Subscribe()
	defer unsubscribe()

	select {
	case st := <-ch:
		if st.RunID != 0 {
			t.Errorf("initial RunID = %d, want 0", st.RunID)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial state")
	}

	p.SetFile(source.Bytes("data.csv", []byte("a,b\n1,2\n")))

	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-ch:
			if st.RunID == 1 && !st.Running {
				if len(st.Rows) != 1 {
					t.Errorf("Rows = %v, want 1 row", st.Rows)
				}
				return
			}
		case <-timeout:
			t.Fatal("no completed state received")
		}
	}
}

func TestPreviewer_SetSamples(t *testing.T) {
	p := NewPreviewer(Deps{}, WithDebounce(testDebounce))
	defer p.Close()

	p.SetFile(source.Bytes("data.csv", []byte("a,b\n1,2\n")))
	waitFor(t, p, finishedRun(1))

	if len(p.Samples()) != 1 {
		t.Fatalf("Samples = %v, want 1 row", p.Samples())
	}
	p.SetSamples(nil)
	if p.Samples() != nil {
		t.Errorf("Samples = %v, want nil after SetSamples(nil)", p.Samples())
	}
}

func TestPreviewer_MaxBytesFormatted(t *testing.T) {
	p := NewPreviewer(Deps{MaxBytes: 1 << 30})
	defer p.Close()

	if got := p.MaxBytesFormatted(); got != "1.0 GiB" {
		t.Errorf("MaxBytesFormatted() = %q, want %q", got, "1.0 GiB")
	}
	if got := len(p.DelimiterOptions()); got != 5 {
		t.Errorf("len(DelimiterOptions()) = %d, want 5", got)
	}
}

func TestPreviewer_CloseClosesSubscribers(t *testing.T) {
	p := NewPreviewer(Deps{})
	ch, _ := p.Subscribe()
	<-ch

	p.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received state after Close, want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Calls after Close are ignored.
	p.SetFile(source.Bytes("late.csv", []byte("a\n")))
	p.Close()
}
