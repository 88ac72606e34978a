package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"bumpforge/pipeline"
)

const defaultSettle = 500 * time.Millisecond

// Watch converts images created in or copied into opts.Source until ctx
// is done. Conversion runs on the calling goroutine, which must own the
// device.
func Watch(ctx context.Context, eng *pipeline.Engine, opts Options, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := checkDest(opts.Dest); err != nil {
		return err
	}
	if sameDir(opts.Source, opts.Dest) {
		return fmt.Errorf("batch: watch: output directory must differ from %s", opts.Source)
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = defaultSettle
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("batch: watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(opts.Source); err != nil {
		return fmt.Errorf("batch: watch %s: %w", opts.Source, err)
	}
	log.Info("watching", zap.String("source", opts.Source))

	// Last event time per path; files are converted once they went quiet.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				if !Accept(path) {
					continue
				}
				res := Process(eng, path, opts)
				if res.Err != nil {
					log.Warn("watched file failed", zap.String("file", path), zap.Error(res.Err))
					continue
				}
				log.Info("watched file done", zap.String("file", path), zap.Int("written", len(res.Written)))
			}
		}
	}
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
