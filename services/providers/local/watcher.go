package local

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"lyrics-sync-go/logcolors"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ChangeFunc receives both halves of a changed "<A> - <B>" lyric file name.
// The order of artist and title is unknown, so receivers handle both.
type ChangeFunc func(first, second string)

// Watcher reports lyric files that are created, written, renamed or removed
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	ext      string
	onChange ChangeFunc

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewWatcher creates a watcher for dir. Start must be called to begin watching.
func NewWatcher(dir, ext string, onChange ChangeFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if ext == "" {
		ext = DefaultExtension
	}
	return &Watcher{
		watcher:  fw,
		dir:      dir,
		ext:      strings.ToLower(ext),
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start adds the directory and runs the event loop until ctx is done or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	log.Infof("%s Watching %s for *%s changes", logcolors.LogWatcher, w.dir, w.ext)
	go w.loop(ctx)
	return nil
}

// Stop closes the underlying watcher
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.done)
	w.watcher.Close()
	log.Infof("%s Stopped", logcolors.LogWatcher)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("%s Watcher error: %v", logcolors.LogWatcher, err)

		case <-w.done:
			return

		case <-ctx.Done():
			w.Stop()
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	first, second, ok := w.identity(event.Name)
	if !ok {
		return
	}

	log.Debugf("%s %s: %s", logcolors.LogWatcher, event.Op, filepath.Base(event.Name))
	if w.onChange != nil {
		w.onChange(first, second)
	}
}

// identity extracts the two name halves from a lyric file path
func (w *Watcher) identity(name string) (string, string, bool) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if strings.ToLower(ext) != w.ext {
		return "", "", false
	}
	return SplitStem(strings.TrimSuffix(base, ext))
}
