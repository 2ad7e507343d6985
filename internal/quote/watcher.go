package quote

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sitegen/internal/logging"
)

// Watcher keeps a price book in sync with its file. A broken edit keeps the
// last good book in place.
type Watcher struct {
	path    string
	book    atomic.Pointer[PriceBook]
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	reloads chan struct{}
}

// NewWatcher loads path and prepares to watch it. The directory is watched
// rather than the file so editors that replace the file are handled.
func NewWatcher(path string, logger *logging.Logger) (*Watcher, error) {
	book, err := LoadPriceBook(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create price book watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("resolve price book path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch price book directory: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Watcher{path: abs, watcher: fw, logger: logger.Named("quote"), reloads: make(chan struct{}, 1)}
	w.book.Store(book)
	return w, nil
}

// Book returns the current price book. Callers must not mutate it.
func (w *Watcher) Book() *PriceBook { return w.book.Load() }

// Reloads signals after every successful reload. Signals coalesce.
func (w *Watcher) Reloads() <-chan struct{} { return w.reloads }

// Run processes file events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "price book watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	book, err := LoadPriceBook(w.path)
	if err != nil {
		w.logger.Warn(ctx, "price book reload failed, keeping previous", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.book.Store(book)
	w.logger.Info(ctx, "price book reloaded", zap.String("path", w.path), zap.Int("packages", len(book.Packages)))
	select {
	case w.reloads <- struct{}{}:
	default:
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
