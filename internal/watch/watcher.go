package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDelay is how long the watcher waits for writes to settle
const DefaultDelay = 100 * time.Millisecond

// ModelWatcher monitors model files and reports batches of changed files.
// The parent directory of each file is watched so editors that save by
// rename are still observed.
type ModelWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	files     map[string]struct{}
	onChange  func([]string) error
	logger    *zap.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Option configures a ModelWatcher
type Option func(*ModelWatcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(w *ModelWatcher) {
		w.logger = logger
	}
}

// WithDelay sets the debounce delay
func WithDelay(d time.Duration) Option {
	return func(w *ModelWatcher) {
		w.debouncer = NewDebouncer(d)
	}
}

// New creates a watcher over the given model files
func New(files []string, onChange func([]string) error, opts ...Option) (*ModelWatcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no model files to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	mw := &ModelWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(DefaultDelay),
		files:     make(map[string]struct{}, len(files)),
		onChange:  onChange,
		logger:    zap.NewNop(),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mw)
	}

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		mw.files[abs] = struct{}{}
	}

	mw.debouncer.SetCallback(func(changed []string) {
		if err := mw.onChange(changed); err != nil {
			mw.logger.Warn("reload failed", zap.Strings("files", changed), zap.Error(err))
		}
	})

	return mw, nil
}

// Start begins watching
func (mw *ModelWatcher) Start() error {
	for _, dir := range mw.directories() {
		if err := mw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		mw.logger.Debug("watching directory", zap.String("dir", dir))
	}

	mw.wg.Add(1)
	go mw.watch()
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (mw *ModelWatcher) Stop() error {
	var err error
	mw.stopOnce.Do(func() {
		close(mw.stopChan)
		mw.wg.Wait()
		mw.debouncer.Stop()
		err = mw.watcher.Close()
	})
	return err
}

func (mw *ModelWatcher) watch() {
	defer mw.wg.Done()

	for {
		select {
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if mw.isModel(event.Name) {
				mw.logger.Debug("model changed", zap.String("file", event.Name), zap.Stringer("op", event.Op))
				mw.debouncer.Add(event.Name)
			}

		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			mw.logger.Warn("watch error", zap.Error(err))

		case <-mw.stopChan:
			return
		}
	}
}

func (mw *ModelWatcher) directories() []string {
	seen := make(map[string]struct{})
	for f := range mw.files {
		seen[filepath.Dir(f)] = struct{}{}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

func (mw *ModelWatcher) isModel(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	_, ok := mw.files[abs]
	return ok
}

// Debouncer collects file changes and triggers the callback once they settle
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopped  bool
}

// NewDebouncer creates a new debouncer
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
	}
}

// Add records a changed file and restarts the delay
func (d *Debouncer) Add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.files[file] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

// flush runs the callback outside the lock with the sorted pending files
func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.files) == 0 || d.stopped {
		d.mutex.Unlock()
		return
	}
	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	d.files = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	sort.Strings(files)
	if callback != nil {
		callback(files)
	}
}

// SetCallback sets the callback function
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop cancels any pending flush
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
