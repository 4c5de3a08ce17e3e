package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher ingests documents dropped into a directory. Events are
// debounced per path so editors and downloads that write in several
// syscalls trigger a single ingest.
type Watcher struct {
	ing      *Ingestor
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer

	fw *fsnotify.Watcher
}

// NewWatcher watches dir for new or rewritten documents.
func NewWatcher(ing *Ingestor, dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		ing:      ing,
		dir:      dir,
		debounce: 500 * time.Millisecond,
		pending:  map[string]*time.Timer{},
		fw:       fw,
	}, nil
}

// Run processes events until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()
	log.Printf("[Ingest] Watching %s", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !watchableFile(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Ingest] Watcher error: %v", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		res, err := w.ing.IngestFile(ctx, path, nil)
		if err != nil {
			log.Printf("[Ingest] Watch ingest failed for %s: %v", path, err)
			return
		}
		log.Printf("[Ingest] Watched file indexed doc_id=%s file=%s chunks=%d",
			res.DocID, res.Filename, res.ChunksUpserted)
	})
}

// watchableFile filters watch events down to supported document types,
// skipping hidden files and editor temporaries.
func watchableFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch ext := extensionOf(path); ext {
	case ".pdf", ".txt", ".md", ".markdown":
		return true
	default:
		return codeExtensions[ext]
	}
}
