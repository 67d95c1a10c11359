package preview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/csvpreview/internal/csvstream"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

// DefaultDebounce is how long a burst of changes is collapsed for.
const DefaultDebounce = 100 * time.Millisecond

// State is what a Previewer shows. It is replaced as a whole on every
// change and must not be mutated by receivers.
type State struct {
	Result

	// OptionsDefined is false until parse options were set or detected.
	OptionsDefined bool `json:"options_defined"`
	// Running is true between the start of a run and its publication.
	Running bool   `json:"running"`
	RunID   uint64 `json:"run_id"`
}

// Option configures a Previewer.
type Option func(*Previewer)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(p *Previewer) { p.debounceDelay = d }
}

// Previewer keeps a preview in sync with its inputs. SetFile always
// schedules a run; SetParseOptions schedules one only when it changes
// options that were already defined. Scheduled runs are debounced and read
// the inputs current when they start. A newer run cancels an older one and
// the older one's result is discarded.
type Previewer struct {
	deps          Deps
	debounceDelay time.Duration
	schedule      func(func())

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	file      source.File
	opts      *ParseOptions
	state     State
	runID     uint64
	runCancel context.CancelFunc
	closed    bool
	wg        sync.WaitGroup

	listenerMu sync.Mutex
	listeners  []chan State
}

// NewPreviewer returns an idle Previewer.
func NewPreviewer(deps Deps, opts ...Option) *Previewer {
	p := &Previewer{
		deps:          deps.withDefaults(),
		debounceDelay: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.schedule = debounce.New(p.debounceDelay)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// SetFile replaces the file and schedules a run.
func (p *Previewer) SetFile(f source.File) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.file = f
	p.mu.Unlock()

	p.trigger()
}

// SetParseOptions replaces the parse options. The first definition only
// records them; later changes schedule a run.
func (p *Previewer) SetParseOptions(o ParseOptions) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	wasDefined := p.opts != nil
	changed := !wasDefined || *p.opts != o
	p.opts = &o
	p.state.Options = o
	p.state.OptionsDefined = true
	p.mu.Unlock()

	if wasDefined && changed {
		p.trigger()
	}
}

// ParseOptions returns the current options and whether they are defined.
func (p *Previewer) ParseOptions() (ParseOptions, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opts == nil {
		return ParseOptions{}, false
	}
	return *p.opts, true
}

// SetSamples overwrites the published samples. Hosts use it to clear
// samples they have consumed.
func (p *Previewer) SetSamples(samples []csvstream.Row) {
	p.mu.Lock()
	p.state.Samples = samples
	st := p.state
	p.mu.Unlock()

	p.notify(st)
}

// Samples returns the last published samples.
func (p *Previewer) Samples() []csvstream.Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Samples
}

// Refresh schedules a run with unchanged inputs.
func (p *Previewer) Refresh() {
	p.trigger()
}

// Snapshot returns the current state.
func (p *Previewer) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// DelimiterOptions returns the delimiters offered to the user.
func (p *Previewer) DelimiterOptions() []DelimiterOption {
	return DelimiterOptions()
}

// MaxBytesFormatted returns the size limit for display, e.g. "1.0 GiB".
func (p *Previewer) MaxBytesFormatted() string {
	return humanize.IBytes(uint64(p.deps.MaxBytes))
}

// Subscribe returns a channel receiving every new state, starting with the
// current one. Slow receivers miss intermediate states. Call the returned
// function to unsubscribe; the channel is closed by it or by Close.
func (p *Previewer) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	p.mu.Lock()
	st, closed := p.state, p.closed
	p.mu.Unlock()

	if closed {
		close(ch)
		return ch, func() {}
	}

	p.listenerMu.Lock()
	p.listeners = append(p.listeners, ch)
	ch <- st
	p.listenerMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { p.removeListener(ch) })
	}
}

// Close cancels any running preview, waits for it to stop and closes all
// subscriber channels.
func (p *Previewer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	p.closeListeners()
}

func (p *Previewer) trigger() {
	p.schedule(p.run)
}

// run executes one preview pass and publishes it unless a newer run has
// started in the meantime.
func (p *Previewer) run() {
	p.mu.Lock()
	if p.closed || p.file == nil {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	defer p.wg.Done()

	p.runID++
	id := p.runID
	if p.runCancel != nil {
		p.runCancel()
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.runCancel = cancel

	file := p.file
	var opts ParseOptions
	if p.opts != nil {
		opts = *p.opts
	}

	p.state = State{
		Result:         Result{Options: opts, FileName: file.Name(), FileSize: file.Size(), Samples: p.state.Samples},
		OptionsDefined: p.opts != nil,
		Running:        true,
		RunID:          id,
	}
	starting := p.state
	p.mu.Unlock()

	p.notify(starting)

	logger := p.deps.Logger.With("run_id", id, "file", file.Name())
	start := time.Now()

	res, err := Compute(ctx, file, opts, p.deps)

	p.mu.Lock()
	if id != p.runID {
		p.mu.Unlock()
		cancel()
		logger.Debug("preview superseded", "duration", time.Since(start))
		return
	}
	cancel()
	p.runCancel = nil

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("preview failed", "error", err)
		}
		p.state.Running = false
		st := p.state
		p.mu.Unlock()
		p.notify(st)
		return
	}

	// Fill in the detected delimiter without scheduling another run.
	if p.opts == nil {
		detected := res.Options
		p.opts = &detected
	} else if p.opts.Delimiter == "" {
		p.opts.Delimiter = res.Options.Delimiter
	}
	res.Options = *p.opts

	p.state = State{Result: res, OptionsDefined: true, RunID: id}
	st := p.state
	p.mu.Unlock()

	logger.Info("preview complete",
		"rows", len(res.Rows),
		"columns", len(res.Columns),
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"delimiter", res.Options.Delimiter,
		"duration", time.Since(start),
	)

	p.notify(st)
}

// notify sends st to all listeners without blocking. A slow listener loses
// its oldest pending state so the latest one always gets through.
func (p *Previewer) notify(st State) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	for _, ch := range p.listeners {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (p *Previewer) removeListener(ch chan State) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	for i, l := range p.listeners {
		if l == ch {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (p *Previewer) closeListeners() {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	for _, ch := range p.listeners {
		close(ch)
	}
	p.listeners = nil
}
