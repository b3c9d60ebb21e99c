package installation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/config"
)

// DefaultSettleDelay is how long the layout file must stay quiet before it
// is reloaded. Editors often write a file in several steps.
const DefaultSettleDelay = 200 * time.Millisecond

// WatchLayout reloads the layout at path into s whenever it changes, until
// ctx is cancelled. The parent directory is watched so that editors which
// replace the file by renaming are followed. Files that fail to load are
// logged and skipped.
func (s *Service) WatchLayout(ctx context.Context, path string, settle time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create layout watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	log.WithField("file", path).Info("watching layout for changes")

	timer := time.NewTimer(settle)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debugf("layout file changed: %s %s", event.Name, event.Op)
			timer.Reset(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("layout watcher error")
		case <-timer.C:
			layout, err := config.LoadLayout(path)
			if err != nil {
				s.countReload("rejected")
				log.WithError(err).Error("failed to load changed layout")
				continue
			}
			if err := s.Reload(ctx, layout); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("failed to apply changed layout")
			}
		}
	}
}
