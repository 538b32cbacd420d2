package cassette

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const (
	defaultRetryInterval       = time.Second
	maxRetriesIfFileNotChanged = 2
)

// Watcher calls a reload function whenever a cassette file changes.
//
// The containing directory is watched rather than the file, because FileStore.Save replaces the file
// with a rename. If the reload function fails, the file may still be being written by some other
// process, so the Watcher retries a limited number of times even without further change events.
type Watcher struct {
	filePath      string
	reload        func() error
	retryInterval time.Duration
	watcher       *fsnotify.Watcher
	loggers       ldlog.Loggers
	closeCh       chan struct{}
	closeOnce     sync.Once
}

// NewWatcher starts watching the file. The reload function is called from the Watcher's goroutine.
func NewWatcher(
	filePath string,
	reload func() error,
	retryInterval time.Duration,
	loggers ldlog.Loggers,
) (*Watcher, error) {
	w := &Watcher{
		filePath:      filePath,
		reload:        reload,
		retryInterval: retryInterval,
		loggers:       loggers,
		closeCh:       make(chan struct{}),
	}
	if w.retryInterval == 0 {
		w.retryInterval = defaultRetryInterval
	}
	w.loggers.SetPrefix("[cassette-watcher]")

	fileInfo, _ := os.Stat(filePath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errCreateWatcherFailed(filePath, err) // COVERAGE: can't cause this condition in unit tests
	}
	if err := watcher.Add(filepath.Dir(filePath)); err != nil {
		_ = watcher.Close()
		return nil, errCreateWatcherFailed(filePath, err)
	}
	w.watcher = watcher

	go w.run(fileInfo)
	return w, nil
}

// FilePath returns the watched file.
func (w *Watcher) FilePath() string {
	return w.filePath
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.closeCh)
	})
}

func (w *Watcher) run(originalFileInfo os.FileInfo) {
	lastFileInfo := originalFileInfo
	retryCh := make(chan struct{})
	needRetry := false
	retriedCountSinceLastChange := 0
	var lastError error

	scheduleRetry := func() {
		w.loggers.Debug("Will schedule retry")
		needRetry = true
		time.AfterFunc(w.retryInterval, func() {
			select {
			case retryCh <- struct{}{}:
			default:
			}
		})
	}

	maybeReload := func() {
		curFileInfo, err := os.Stat(w.filePath)
		if err == nil {
			if fileMayHaveChanged(lastFileInfo, curFileInfo) {
				retriedCountSinceLastChange = 0
				lastError = nil
				lastFileInfo = curFileInfo
				needRetry = false
				if err := w.reload(); err != nil {
					w.loggers.Warnf(logMsgReloadError, err.Error())
					lastError = err
					scheduleRetry()
					return
				}
				w.loggers.Infof(logMsgReloadedCassette, w.filePath)
				return
			}
			w.loggers.Debug("File has not changed")
			if lastError == nil {
				return
			}
		} else if lastError == nil {
			w.loggers.Warn(logMsgReloadFileNotFound)
			lastError = err
		}
		if retriedCountSinceLastChange < maxRetriesIfFileNotChanged {
			retriedCountSinceLastChange++
			w.loggers.Warn(logMsgReloadUnchangedRetry)
			scheduleRetry()
		} else {
			w.loggers.Errorf(logMsgReloadUnchangedNoMoreRetries, lastError)
		}
	}

	name := filepath.Base(w.filePath)
	for {
		select {
		case <-w.closeCh:
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			w.loggers.Debugf("Got file watcher event: %+v", event)
			w.consumeExtraEvents()
			maybeReload()

		case err, ok := <-w.watcher.Errors:
			if ok {
				w.loggers.Debugf("File watcher error: %s", err)
			}

		case <-retryCh:
			if needRetry {
				maybeReload()
			}
		}
	}
}

func (w *Watcher) consumeExtraEvents() {
	for {
		select {
		case <-w.watcher.Events: // COVERAGE: can't simulate this condition in unit tests
		default:
			return
		}
	}
}

func fileMayHaveChanged(oldInfo, newInfo os.FileInfo) bool {
	if oldInfo == nil {
		return true
	}
	return oldInfo.ModTime() != newInfo.ModTime() || oldInfo.Size() != newInfo.Size()
}
