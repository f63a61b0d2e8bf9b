package analysis

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nakatsu/shirabe/internal/bus"
	"github.com/nakatsu/shirabe/internal/models"
	"github.com/nakatsu/shirabe/internal/store"
)

// timeFormat is the stamp written to AnalyzedAt, matching what history and
// embedded results carry.
const timeFormat = "2006-01-02 15:04:05"

// Backend is the external analyzer. Analyze takes the checked files' paths,
// the mode, and the trimmed custom instruction, and returns one response blob.
// Guidelines produces a single aggregate guideline document.
type Backend interface {
	Analyze(ctx context.Context, req *models.AnalyzeRequest) (string, error)
	Guidelines(ctx context.Context, req *models.GuidelineRequest) (string, error)
}

// View is the result pane. The orchestrator clears it when a run starts and
// shows standalone documents (guideline output) on it.
type View interface {
	Clear()
	Show(text string)
}

// Runner coordinates analysis and guideline runs over a store. A run:
// subscribes to the log and progress channels, issues exactly one backend
// request, applies parsed results back to the store, and releases its
// subscriptions on every exit path. At most one run is in flight at a time,
// enforced by a run token independent of UI disablement.
type Runner struct {
	store   *store.Store
	bus     *bus.Bus
	backend Backend
	logger  *zap.Logger

	view       View
	notify     func()
	transcript func(models.LogEvent)

	mu    sync.Mutex
	runID string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a logger for run lifecycle events.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithView sets the result pane.
func WithView(v View) RunnerOption {
	return func(r *Runner) { r.view = v }
}

// WithNotify sets a callback invoked whenever the aggregate run state changes
// (run start, run end). The session uses it to re-derive UI state.
func WithNotify(fn func()) RunnerOption {
	return func(r *Runner) { r.notify = fn }
}

// WithTranscript sets the sink for log events received while a run is in
// flight. Log lines only feed the transcript; they never touch record state.
func WithTranscript(fn func(models.LogEvent)) RunnerOption {
	return func(r *Runner) { r.transcript = fn }
}

// NewRunner creates a runner over the given store, bus, and backend.
func NewRunner(s *store.Store, b *bus.Bus, backend Backend, opts ...RunnerOption) *Runner {
	r := &Runner{store: s, bus: b, backend: backend}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a run is currently in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID != ""
}

// acquire claims the run token, failing when a run is already in flight.
func (r *Runner) acquire() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runID != "" {
		return "", ErrRunInFlight
	}
	r.runID = uuid.NewString()
	return r.runID, nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.runID = ""
	r.mu.Unlock()
}

// Analyze runs one analysis over the checked set. mode is "individual" or
// "compare". It returns the raw backend response; per-file state is applied
// to the store before returning. On backend failure every checked file is
// marked errored and the error is returned.
func (r *Runner) Analyze(ctx context.Context, mode, instruction string) (string, error) {
	checked := r.store.Checked()
	if len(checked) == 0 {
		return "", ErrNoSelection
	}
	runID, err := r.acquire()
	if err != nil {
		return "", err
	}

	if r.view != nil {
		r.view.Clear()
	}
	r.store.Update(func() {
		for _, rec := range checked {
			rec.Analyzing = true
		}
	})
	r.notifyState()

	unsubLog := r.subscribeLog()
	unsubProgress := r.bus.Subscribe(models.ChannelProgress, func(ev any) {
		p, ok := ev.(models.ProgressEvent)
		if !ok {
			return
		}
		rec := r.store.FindByName(p.FileName)
		if rec == nil {
			// Progress for a file we do not track; ignore.
			return
		}
		r.store.Update(func() { rec.Analyzing = !p.Completed })
	})
	defer func() {
		unsubLog()
		unsubProgress()
		r.store.ClearAnalyzing()
		r.release()
		r.notifyState()
	}()

	paths := make([]string, len(checked))
	for i, rec := range checked {
		paths[i] = rec.Path
	}
	req := &models.AnalyzeRequest{
		Paths:             paths,
		Mode:              mode,
		CustomInstruction: strings.TrimSpace(instruction),
	}
	if r.logger != nil {
		r.logger.Info("analysis run started",
			zap.String("run_id", runID),
			zap.String("mode", mode),
			zap.Int("files", len(paths)),
		)
	}

	response, err := r.backend.Analyze(ctx, req)
	if err != nil {
		r.store.Update(func() {
			for _, rec := range checked {
				rec.Result = err.Error()
				rec.ResultIsError = true
				rec.Embedded = false
				rec.CompareMode = false
			}
		})
		if r.logger != nil {
			r.logger.Warn("analysis run failed", zap.String("run_id", runID), zap.Error(err))
		}
		return "", err
	}

	stamp := time.Now().Format(timeFormat)
	if mode == models.ModeCompare {
		r.applyCompare(checked, response, stamp)
	} else {
		r.applyIndividual(checked, response, stamp)
	}
	if r.logger != nil {
		r.logger.Info("analysis run finished", zap.String("run_id", runID))
	}
	return response, nil
}

// applyCompare gives every file in the request set the same shared result.
func (r *Runner) applyCompare(checked []*models.FileRecord, response, stamp string) {
	r.store.Update(func() {
		for _, rec := range checked {
			rec.Result = response
			rec.ResultIsError = false
			rec.CompareMode = true
			rec.DocumentType = models.DocTypeComparative
			rec.AnalyzedAt = stamp
		}
	})
}

// applyIndividual routes parsed sections back to records by display name.
// Checked files without a section keep their prior result untouched; sections
// for untracked names are dropped. Fresh results are marked embedded: the
// backend persists them into the source PDF as part of the run.
func (r *Runner) applyIndividual(checked []*models.FileRecord, response, stamp string) {
	sections := ParseIndividual(response)
	r.store.Update(func() {
		for _, rec := range checked {
			content, ok := sections[rec.Name]
			if !ok {
				continue
			}
			rec.Result = content
			rec.ResultIsError = false
			rec.CompareMode = false
			rec.Embedded = true
			rec.AnalyzedAt = stamp
		}
	})
}

// Guidelines runs a guideline-generation pass over the checked files that
// already carry a non-error result. The output is one aggregate document
// surfaced on the view; it is not applied back to individual records.
func (r *Runner) Guidelines(ctx context.Context, instruction string) (string, error) {
	var input []*models.FileRecord
	for _, rec := range r.store.Checked() {
		if rec.HasResult() {
			input = append(input, rec)
		}
	}
	if len(input) == 0 {
		r.bus.Publish(models.ChannelLog, models.LogEvent{
			Message: "no analyzed files selected for guideline generation",
			Level:   models.LevelError,
		})
		return "", ErrNoAnalyzedSelection
	}
	runID, err := r.acquire()
	if err != nil {
		return "", err
	}

	r.store.Update(func() {
		for _, rec := range input {
			rec.Analyzing = true
		}
	})
	r.notifyState()

	unsubLog := r.subscribeLog()
	unsubProgress := r.bus.Subscribe(models.ChannelProgress, func(any) {})
	defer func() {
		unsubLog()
		unsubProgress()
		r.store.ClearAnalyzing()
		r.release()
		r.notifyState()
	}()

	paths := make([]string, len(input))
	for i, rec := range input {
		paths[i] = rec.Path
	}
	req := &models.GuidelineRequest{
		Paths:             paths,
		Folder:            filepath.Dir(input[0].Path),
		CustomInstruction: strings.TrimSpace(instruction),
	}
	if r.logger != nil {
		r.logger.Info("guideline run started", zap.String("run_id", runID), zap.Int("files", len(paths)))
	}

	doc, err := r.backend.Guidelines(ctx, req)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("guideline run failed", zap.String("run_id", runID), zap.Error(err))
		}
		return "", err
	}
	if r.view != nil {
		r.view.Show(doc)
	}
	if r.logger != nil {
		r.logger.Info("guideline run finished", zap.String("run_id", runID))
	}
	return doc, nil
}

// subscribeLog opens the run-scoped log subscription feeding the transcript.
func (r *Runner) subscribeLog() func() {
	return r.bus.Subscribe(models.ChannelLog, func(ev any) {
		le, ok := ev.(models.LogEvent)
		if !ok {
			return
		}
		if r.transcript != nil {
			r.transcript(le)
		}
	})
}

func (r *Runner) notifyState() {
	if r.notify != nil {
		r.notify()
	}
}
