// Package watcher reports changes to a trace on disk, coalescing bursts of
// filesystem events.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/go-coro-inspect/internal/util"
)

// DefaultDebounce is used when NewFileWatcher gets a non-positive debounce.
const DefaultDebounce = 500 * time.Millisecond

// Change is a batch of filesystem events with no more than the debounce
// interval between them.
type Change struct {
	Paths []string
	At    time.Time
}

type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	file     string // set when watching a single file
	debounce time.Duration
	changes  chan Change

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// NewFileWatcher watches a trace. Directories are watched recursively; a
// single file is watched through its parent directory.
func NewFileWatcher(path string, debounce time.Duration) (*FileWatcher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		root:     path,
		debounce: debounce,
		changes:  make(chan Change),
		done:     make(chan struct{}),
	}

	if info.IsDir() {
		err = fw.addPath(path)
	} else {
		fw.file = filepath.Clean(path)
		err = watcher.Add(filepath.Dir(path))
	}
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", path, err)
	}

	fw.wg.Add(1)
	go fw.processEvents()

	return fw, nil
}

func (fw *FileWatcher) addPath(path string) error {
	// Recursively add directories
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return fw.watcher.Add(p)
		}
		return nil
	})
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if fw.file != "" {
		return filepath.Clean(event.Name) == fw.file
	}
	return true
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()
	defer close(fw.changes)

	pending := make(map[string]struct{})
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			// new session directories appear while lttng is running
			if event.Has(fsnotify.Create) && fw.file == "" {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fw.addPath(event.Name); err != nil {
						util.LogWarnf("Cannot watch new directory %s: %v", event.Name, err)
					}
				}
			}

			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				timer.Reset(fw.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			change := Change{At: time.Now(), Paths: make([]string, 0, len(pending))}
			for p := range pending {
				change.Paths = append(change.Paths, p)
			}
			sort.Strings(change.Paths)
			pending = make(map[string]struct{})

			util.LogDebug(fmt.Sprintf("Trace changed: %d paths under %s", len(change.Paths), fw.root))
			select {
			case fw.changes <- change:
			case <-fw.done:
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue running
			util.LogErrorf("File monitoring error on %s: %v", fw.root, err)
		}
	}
}

// Changes delivers debounced change batches. It is closed by Close.
func (fw *FileWatcher) Changes() <-chan Change {
	return fw.changes
}

// Close stops watching and waits for the event goroutine to exit. It is safe
// to call more than once.
func (fw *FileWatcher) Close() error {
	fw.closeOnce.Do(func() {
		close(fw.done)
		fw.closeErr = fw.watcher.Close()
		fw.wg.Wait()
	})
	return fw.closeErr
}
