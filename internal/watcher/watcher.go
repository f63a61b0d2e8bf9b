// Package watcher watches project folders for arriving and departing
// documents with fsnotify, debouncing writes so half-copied files are not
// reported.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches folder roots and invokes callbacks when documents appear or
// disappear.
type Watcher struct {
	extensions []string
	recursive  bool
	onDetect   func(path string)
	onRemove   func(path string)
	debounce   time.Duration

	mu          sync.Mutex
	roots       []string
	watcher     *fsnotify.Watcher
	debounceMap map[string]*time.Timer
	started     bool

	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (folder changes, file events).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher. onDetect and onRemove are called when a
// matching document appears or disappears. roots are the initial folders to
// watch; extensions filter which files are reported (empty means all).
func NewWatcher(roots []string, extensions []string, recursive bool, onDetect, onRemove func(path string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:       roots,
		extensions:  normalizeExtensions(extensions),
		recursive:   recursive,
		onDetect:    onDetect,
		onRemove:    onRemove,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions), zap.Bool("recursive", w.recursive))
	}
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.watchNewDirectory(path)
			return
		}
		if w.matchExtension(path) {
			w.debounceDetect(path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		// A rename away from a watched folder is a removal from its
		// point of view.
		w.cancelDebounce(path)
		if w.matchExtension(path) && w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// watchNewDirectory picks up a folder created or moved into a watched root:
// its tree joins the watch and documents already inside are reported.
func (w *Watcher) watchNewDirectory(dir string) {
	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}
	if err := w.watchTree(watcher, dir); err != nil && w.logger != nil {
		w.logger.Debug("watcher failed to add new folder", zap.String("path", dir), zap.Error(err))
	}
	w.scanDirectory(dir)
}

// watchTree adds dir to the fsnotify watch, descending into subfolders when
// the watcher is recursive.
func (w *Watcher) watchTree(watcher *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		return watcher.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.underRootLocked(path)
}

func (w *Watcher) underRootLocked(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range w.roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == normalizeExtension(e) {
			return true
		}
	}
	return false
}

func normalizeExtension(e string) string {
	e = strings.ToLower(e)
	if !strings.HasPrefix(e, ".") {
		e = "." + e
	}
	return e
}

func normalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, e := range extensions {
		out = append(out, normalizeExtension(e))
	}
	return out
}

func (w *Watcher) debounceDetect(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		logger := w.logger
		w.mu.Unlock()
		if logger != nil {
			logger.Debug("watcher detected document", zap.String("path", path))
		}
		if w.onDetect != nil {
			w.onDetect(path)
		}
	})
	w.debounceMap[path] = t
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// AddDirectory adds a folder root to watch. When scanExisting is set,
// documents already inside are reported as well.
func (w *Watcher) AddDirectory(root string, scanExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	for _, r := range w.roots {
		if filepath.Clean(r) == filepath.Clean(abs) {
			return nil
		}
	}
	if err := w.addRootLocked(abs); err != nil {
		return err
	}
	w.roots = append(w.roots, abs)
	if w.logger != nil {
		w.logger.Debug("watcher folder added", zap.String("path", abs), zap.Bool("scan_existing", scanExisting))
	}
	if scanExisting && w.onDetect != nil {
		go w.scanDirectory(abs)
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	return w.watchTree(w.watcher, root)
}

func (w *Watcher) scanDirectory(root string) {
	w.mu.Lock()
	exts := append([]string(nil), w.extensions...)
	onDetect := w.onDetect
	logger := w.logger
	w.mu.Unlock()
	if logger != nil {
		logger.Debug("watcher scanning folder", zap.String("root", root))
	}
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if matchExtension(path, exts) {
			if logger != nil {
				logger.Debug("watcher scan found document", zap.String("path", path))
			}
			if onDetect != nil {
				onDetect(path)
			}
		}
		return nil
	})
}

// RemoveDirectory stops watching the given root. Documents already reported
// stay reported. Watches still covered by another root are left in place.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	idx := -1
	for i, r := range w.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	for _, watched := range w.watcher.WatchList() {
		if watched != abs && !inDir(abs, watched) {
			continue
		}
		if w.underRootLocked(watched) {
			continue
		}
		_ = w.watcher.Remove(watched)
	}
	if w.logger != nil {
		w.logger.Debug("watcher folder removed", zap.String("path", abs))
	}
	return nil
}

// Directories returns a copy of the current watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// ScanExistingFiles reports every document already present under a watched
// root. Call after Start to pick up files that predate the watcher.
func (w *Watcher) ScanExistingFiles() {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	if w.logger != nil {
		w.logger.Debug("watcher scanning existing documents", zap.Strings("roots", roots))
	}
	for _, root := range roots {
		w.scanDirectory(root)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
