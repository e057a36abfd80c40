package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"driftfm/logger"

	"github.com/fsnotify/fsnotify"
)

// audioExtensions lists file extensions the inbox watcher picks up.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".aac":  true,
}

// WatchInbox watches dir for new audio files and calls handle for each one
// once it has finished writing. Blocks until ctx is cancelled. Files already
// present at startup are handled first.
func WatchInbox(ctx context.Context, dir string, handle func(path string)) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	// Pick up anything dropped in before the watcher existed.
	if entries, err := os.ReadDir(dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			p := filepath.Join(dir, entry.Name())
			if isAudioFile(p) && isFileStable(p) {
				handle(p)
			}
		}
	}

	logger.Info("watching ingest inbox", logger.String("dir", dir))

	// Writes arrive in bursts; hold files in a pending set until their size
	// stops changing before handing them off.
	pending := make(map[string]time.Time)
	checkTicker := time.NewTicker(200 * time.Millisecond)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && isAudioFile(event.Name) {
				pending[event.Name] = time.Now()
			}

		case <-checkTicker.C:
			now := time.Now()
			for p, lastEvent := range pending {
				if now.Sub(lastEvent) < 500*time.Millisecond {
					continue
				}
				if !isFileStable(p) {
					continue
				}
				delete(pending, p)
				handle(p)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox watcher error", logger.ErrorField(err))
		}
	}
}

func isAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// isFileStable reports whether the file size holds steady across a short
// interval, i.e. the writer has finished.
func isFileStable(path string) bool {
	info1, err := os.Stat(path)
	if err != nil || info1.Size() == 0 {
		return false
	}

	time.Sleep(50 * time.Millisecond)

	info2, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info1.Size() == info2.Size()
}
