// Package session owns one working set of documents: the file records, the
// custom instruction, the result pane, and the run transcript. It wires the
// analysis runner to the event bus and replays persisted history on startup.
package session

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nakatsu/shirabe/internal/analysis"
	"github.com/nakatsu/shirabe/internal/bus"
	"github.com/nakatsu/shirabe/internal/history"
	"github.com/nakatsu/shirabe/internal/models"
	"github.com/nakatsu/shirabe/internal/pdfmeta"
	"github.com/nakatsu/shirabe/internal/store"
)

// Session is the aggregate behind one operator surface.
type Session struct {
	store  *store.Store
	bus    *bus.Bus
	runner *analysis.Runner

	history *history.Store
	meta    *pdfmeta.Codec
	logger  *zap.Logger

	mu          sync.Mutex
	instruction string
	transcript  []models.LogEvent
	listeners   []func()
	unsubs      []func()

	view *resultPane
}

// Option configures a Session.
type Option func(*Session)

// WithHistory sets the history store used to replay prior analyses.
func WithHistory(h *history.Store) Option {
	return func(s *Session) { s.history = h }
}

// WithMeta sets the codec used to read results embedded in PDFs.
func WithMeta(m *pdfmeta.Codec) Option {
	return func(s *Session) { s.meta = m }
}

// WithLogger sets a logger for session lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a session over the given store, bus, and backend.
func New(st *store.Store, b *bus.Bus, backend analysis.Backend, opts ...Option) *Session {
	s := &Session{
		store: st,
		bus:   b,
		view:  &resultPane{},
	}
	for _, opt := range opts {
		opt(s)
	}
	runnerOpts := []analysis.RunnerOption{
		analysis.WithView(s.view),
		analysis.WithNotify(s.fireStateChange),
		analysis.WithTranscript(s.appendTranscript),
	}
	if s.logger != nil {
		runnerOpts = append(runnerOpts, analysis.WithLogger(s.logger))
	}
	s.runner = analysis.NewRunner(st, b, backend, runnerOpts...)
	return s
}

// Store exposes the underlying file record store.
func (s *Session) Store() *store.Store {
	return s.store
}

// Start subscribes the session to detected-document events. New PDFs reported
// by a watcher join the working set automatically.
func (s *Session) Start() {
	unsub := s.bus.Subscribe(models.ChannelDetected, func(ev any) {
		d, ok := ev.(models.DetectedEvent)
		if !ok {
			return
		}
		if s.AddFile(d.Path) {
			s.bus.Publish(models.ChannelLog, models.LogEvent{
				Message: "detected " + d.Name,
				Level:   models.LevelInfo,
			})
		}
	})
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
}

// Stop releases the session's bus subscriptions.
func (s *Session) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// AddFile adds one document to the working set. When the PDF carries an
// embedded result it is restored onto the record. Reports whether the file
// was new.
func (s *Session) AddFile(path string) bool {
	rec := models.NewFileRecord(path)
	if s.meta != nil {
		if data, err := s.meta.Read(path); err == nil && data != nil {
			rec.Result = data.Result
			rec.Embedded = true
			rec.AnalyzedAt = data.Date
		} else if err != nil && s.logger != nil {
			s.logger.Debug("no embedded result", zap.String("path", path), zap.Error(err))
		}
	}
	added := s.store.Add(rec)
	if added {
		s.fireStateChange()
	}
	return added
}

// AddFiles adds several documents and reports how many were new.
func (s *Session) AddFiles(paths []string) int {
	added := 0
	for _, p := range paths {
		if s.AddFile(p) {
			added++
		}
	}
	return added
}

// Clear empties the working set and blanks the result pane. The pane shows
// output produced for listed files, so it cannot outlive the list.
func (s *Session) Clear() {
	s.store.Clear()
	s.view.Clear()
	s.fireStateChange()
}

// LoadHistory replays persisted history into the working set: every entry
// whose file still exists on disk becomes a record carrying its prior
// document type and timestamp. Reports how many records were restored.
func (s *Session) LoadHistory(ctx context.Context) (int, error) {
	if s.history == nil {
		return 0, nil
	}
	entries, err := s.history.All(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, e := range entries {
		if _, err := os.Stat(e.FilePath); err != nil {
			continue
		}
		rec := models.NewFileRecord(e.FilePath)
		rec.DocumentType = e.DocumentType
		rec.AnalyzedAt = e.AnalyzedAt
		if s.meta != nil {
			if data, err := s.meta.Read(e.FilePath); err == nil && data != nil {
				rec.Result = data.Result
				rec.Embedded = true
			}
		}
		if s.store.Add(rec) {
			restored++
		}
	}
	if restored > 0 {
		s.fireStateChange()
	}
	if s.logger != nil {
		s.logger.Info("history restored", zap.Int("records", restored))
	}
	return restored, nil
}

// SetInstruction stores the operator's custom instruction.
func (s *Session) SetInstruction(instruction string) {
	s.mu.Lock()
	s.instruction = instruction
	s.mu.Unlock()
	s.fireStateChange()
}

// Instruction returns the current custom instruction.
func (s *Session) Instruction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instruction
}

// Analyze runs one analysis over the checked set in the given mode.
func (s *Session) Analyze(ctx context.Context, mode string) (string, error) {
	return s.runner.Analyze(ctx, mode, s.Instruction())
}

// Guidelines runs guideline generation over the checked, analyzed files.
func (s *Session) Guidelines(ctx context.Context) (string, error) {
	return s.runner.Guidelines(ctx, s.Instruction())
}

// Running reports whether a run is in flight.
func (s *Session) Running() bool {
	return s.runner.Running()
}

// UIState derives the control availability for the current working set.
func (s *Session) UIState() analysis.UIState {
	return analysis.DeriveUIState(s.store.Flags(), strings.TrimSpace(s.Instruction()) != "")
}

// ResultText returns the current content of the result pane.
func (s *Session) ResultText() string {
	return s.view.Text()
}

// Transcript returns a copy of the log lines captured during runs.
func (s *Session) Transcript() []models.LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LogEvent, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// OnStateChange registers a callback fired whenever the derived UI state may
// have changed.
func (s *Session) OnStateChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) fireStateChange() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) appendTranscript(ev models.LogEvent) {
	s.mu.Lock()
	s.transcript = append(s.transcript, ev)
	s.mu.Unlock()
}

// resultPane is the in-memory result view cleared at run start.
type resultPane struct {
	mu   sync.Mutex
	text string
}

func (p *resultPane) Clear() {
	p.mu.Lock()
	p.text = ""
	p.mu.Unlock()
}

func (p *resultPane) Show(text string) {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
}

func (p *resultPane) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}
