package batch

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
)

// DefaultDebounce collapses bursts of input file events into one trigger
const DefaultDebounce = 2 * time.Second

// InputWatcher watches the inputs directory and calls onChange, debounced,
// when an input file is created or written.
type InputWatcher struct {
	dir            string
	watcher        *fsnotify.Watcher
	onChange       func()
	debouncePeriod time.Duration
	logger         *zap.SugaredLogger

	mu            sync.Mutex
	debounceTimer *time.Timer
	started       bool
	done          chan struct{}
}

// NewInputWatcher creates a watcher on dir
func NewInputWatcher(dir string, debounce time.Duration, onChange func(), log *zap.SugaredLogger) (*InputWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch inputs directory %s", dir)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &InputWatcher{
		dir:            dir,
		watcher:        watcher,
		onChange:       onChange,
		debouncePeriod: debounce,
		logger:         logger.AddIXSymbol(log),
		done:           make(chan struct{}),
	}, nil
}

// Start begins watching for input changes
func (w *InputWatcher) Start() {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.watchLoop()
}

// watchLoop monitors file system events
func (w *InputWatcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isInputFile(event.Name) {
				continue
			}
			w.logger.Debugw("Input change detected", logger.FieldPath, event.Name, "op", event.Op.String())
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Input watcher error", logger.FieldError, err)
		}
	}
}

// schedule debounces rapid file changes
func (w *InputWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		w.logger.Infow("Inputs changed, requesting early cycle", logger.FieldPath, w.dir)
		w.onChange()
	})
}

// Stop stops watching and cancels a pending trigger
func (w *InputWatcher) Stop() error {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	started := w.started
	w.mu.Unlock()

	err := w.watcher.Close()
	if started {
		<-w.done
	}
	return err
}

// isInputFile ignores hidden and temporary files such as editor swap files
func isInputFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, InputExt) && !strings.HasPrefix(base, ".")
}
