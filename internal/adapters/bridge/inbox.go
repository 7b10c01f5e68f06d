package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/security"
)

// InboxConfig holds configuration for the inbox watcher.
type InboxConfig struct {
	Dir              string
	DebounceDuration time.Duration // How long a file must be quiet before it is read
}

// Inbox watches a directory for *.json notices dropped by a background runner.
// Each file is decoded, handled and removed. Files already present when the
// watch starts are processed first.
type Inbox struct {
	cfg       InboxConfig
	decoder   *Decoder
	handler   Handler
	logger    *logging.Logger
	fsWatcher *fsnotify.Watcher
	paths     *security.PathValidator

	// Debouncing state
	pending   map[string]time.Time
	pendingMu sync.Mutex

	statsMu   sync.Mutex
	processed int
	rejected  int

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewInbox creates the inbox directory if needed and prepares a watcher.
func NewInbox(cfg InboxConfig, decoder *Decoder, handler Handler, logger *logging.Logger) (*Inbox, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox directory is required")
	}
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = 100 * time.Millisecond
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	paths := security.NewPathValidator()
	if err := paths.ValidateDeletionRoot(dir); err != nil {
		return nil, fmt.Errorf("unsafe inbox directory: %w", err)
	}
	cfg.Dir = dir

	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Inbox{
		cfg:       cfg,
		decoder:   decoder,
		handler:   handler,
		logger:    logger.With("component", "bridge.inbox", "dir", cfg.Dir),
		fsWatcher: fsWatcher,
		paths:     paths,
		pending:   make(map[string]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start processes the existing backlog and begins watching.
func (in *Inbox) Start() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()

	if err := in.fsWatcher.Add(in.cfg.Dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(in.cfg.Dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isJSONFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		in.process(filepath.Join(in.cfg.Dir, name))
	}

	in.wg.Add(2)
	go in.processEvents()
	go in.debounceProcessor()
	return nil
}

// Stats returns how many files were handled and how many were rejected.
func (in *Inbox) Stats() (processed, rejected int) {
	in.statsMu.Lock()
	defer in.statsMu.Unlock()
	return in.processed, in.rejected
}

// Close stops the watcher.
func (in *Inbox) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.mu.Unlock()

	in.cancel()
	err := in.fsWatcher.Close()
	in.wg.Wait()
	return err
}

func (in *Inbox) processEvents() {
	defer in.wg.Done()

	for {
		select {
		case <-in.ctx.Done():
			return

		case event, ok := <-in.fsWatcher.Events:
			if !ok {
				return
			}
			if !isJSONFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			in.pendingMu.Lock()
			in.pending[event.Name] = time.Now()
			in.pendingMu.Unlock()

		case err, ok := <-in.fsWatcher.Errors:
			if !ok {
				return
			}
			in.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

func (in *Inbox) debounceProcessor() {
	defer in.wg.Done()

	ticker := time.NewTicker(in.cfg.DebounceDuration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-in.ctx.Done():
			return
		case <-ticker.C:
			for _, path := range in.stablePaths() {
				in.process(path)
			}
		}
	}
}

func (in *Inbox) stablePaths() []string {
	in.pendingMu.Lock()
	defer in.pendingMu.Unlock()

	now := time.Now()
	var stable []string
	for path, seen := range in.pending {
		if now.Sub(seen) >= in.cfg.DebounceDuration {
			stable = append(stable, path)
			delete(in.pending, path)
		}
	}
	sort.Strings(stable)
	return stable
}

// process handles one file. Unreadable or invalid files are removed too so a
// bad notice cannot wedge the inbox.
func (in *Inbox) process(path string) {
	if err := in.paths.ValidateDeletable(in.cfg.Dir, path); err != nil {
		if !os.IsNotExist(err) {
			in.logger.Warn("skipping inbox entry", "file", filepath.Base(path), "error", err)
			in.count(false)
		}
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			in.logger.Warn("failed to read inbox file", "file", filepath.Base(path), "error", err)
		}
		return
	}

	msg, err := in.decoder.Decode(raw)
	if err != nil {
		in.logger.Warn("discarding invalid inbox file", "file", filepath.Base(path), "error", err)
		in.count(false)
	} else if err := in.handler.Handle(in.ctx, msg); err != nil {
		in.logger.Debug("inbox message not handled", "file", filepath.Base(path), "error", err)
		in.count(false)
	} else {
		in.count(true)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		in.logger.Warn("failed to remove inbox file", "file", filepath.Base(path), "error", err)
	}
}

func (in *Inbox) count(ok bool) {
	in.statsMu.Lock()
	defer in.statsMu.Unlock()
	if ok {
		in.processed++
	} else {
		in.rejected++
	}
}

func isJSONFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}
