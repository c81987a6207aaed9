package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const badgerGCInterval = 5 * time.Minute

// Badger is a Backend on top of an embedded badger database.
type Badger struct {
	db       *badger.DB
	logger   *zap.SugaredLogger
	dataDir  string
	gcTicker *time.Ticker
	gcStopCh chan struct{}
	gcWg     sync.WaitGroup
	gcOn     bool
}

// BadgerOption configures a Badger backend.
type BadgerOption func(*Badger)

// WithBadgerDir stores data under dir. Without it the database is in memory.
func WithBadgerDir(dir string) BadgerOption {
	return func(b *Badger) {
		b.dataDir = dir
	}
}

// WithBadgerLogger routes badger's own log output through logger.
func WithBadgerLogger(logger *zap.SugaredLogger) BadgerOption {
	return func(b *Badger) {
		b.logger = logger
	}
}

// WithBadgerGC toggles periodic value log garbage collection.
func WithBadgerGC(enabled bool) BadgerOption {
	return func(b *Badger) {
		b.gcOn = enabled
	}
}

// OpenBadger opens (or creates) a badger database.
func OpenBadger(opts ...BadgerOption) (*Badger, error) {
	b := &Badger{gcOn: true}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop().Sugar()
	}

	var badgerOpts badger.Options
	if b.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
		b.gcOn = false
	} else {
		dir := filepath.Join(b.dataDir, "badger")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.
		WithLogger(badgerLogger{b.logger}).
		// The default INFO logging is noisy for a handful of keys
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	b.db = db

	if b.gcOn {
		b.gcTicker = time.NewTicker(badgerGCInterval)
		b.gcStopCh = make(chan struct{})
		b.gcWg.Add(1)
		go b.runGC(b.gcTicker, b.gcStopCh)
	}
	return b, nil
}

func (b *Badger) runGC(t *time.Ticker, stop <-chan struct{}) {
	defer b.gcWg.Done()
	for {
		select {
		case <-t.C:
			for {
				err := b.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					b.logger.Warnw("badger value log GC failed", "error", err)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

func (b *Badger) Get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return out, nil
}

func (b *Badger) Put(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger put %s: %w", key, err)
	}
	return nil
}

func (b *Badger) Delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// Close stops GC and closes the database.
func (b *Badger) Close() error {
	if b.gcTicker != nil {
		b.gcTicker.Stop()
		close(b.gcStopCh)
		b.gcWg.Wait()
		b.gcTicker = nil
	}
	return b.db.Close()
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b badgerLogger) Errorf(format string, args ...any)   { b.l.Errorf(format, args...) }
func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warnf(format, args...) }
func (b badgerLogger) Infof(format string, args ...any)    { b.l.Infof(format, args...) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.l.Debugf(format, args...) }
