// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package badger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/memory"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

type Database struct {
	opts
	badger *badger.DB
	ready  bool
	mu     sync.RWMutex
}

type opts struct {
	gcInterval time.Duration
	inMemory   bool
}

type Option func(*opts) error

// WithGCInterval sets how often value log garbage collection runs.
func WithGCInterval(d time.Duration) Option {
	return func(o *opts) error {
		if d <= 0 {
			return errors.BadRequest.WithFormat("invalid GC interval %v", d)
		}
		o.gcInterval = d
		return nil
	}
}

// InMemory runs Badger without touching the disk.
func InMemory(o *opts) error {
	o.inMemory = true
	return nil
}

func New(filepath string, o ...Option) (*Database, error) {
	d := new(Database)
	d.gcInterval = time.Hour
	for _, o := range o {
		err := o(&d.opts)
		if err != nil {
			return nil, errors.UnknownError.Wrap(err)
		}
	}

	var opts badger.Options
	if d.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Make sure all directories exist
		err := os.MkdirAll(filepath, 0700)
		if err != nil {
			return nil, errors.UnknownError.WithFormat("open badger: create %q: %w", filepath, err)
		}
		opts = badger.DefaultOptions(filepath)
	}
	opts = opts.WithLogger(slogger{})

	// Open Badger
	var err error
	d.badger, err = badger.Open(opts)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("open badger: %w", err)
	}

	d.ready = true
	mDbOpen.Inc()

	if !d.inMemory {
		go d.gc()
	}

	return d, nil
}

// Begin begins a change set.
func (d *Database) Begin(prefix []byte, writable bool) keyvalue.ChangeSet {
	// Use a read-only transaction for reading
	rd := d.badger.NewTransaction(false)
	mTxnOpen.Inc()

	get := func(key []byte) ([]byte, error) {
		item, err := rd.Get(key)
		switch {
		case err == nil:
			// Ok
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil, errors.NotFound.WithFormat("%x not found", key)
		default:
			return nil, errors.UnknownError.WithFormat("get %x: %w", key, err)
		}

		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, errors.UnknownError.WithFormat("get %x: %w", key, err)
		}
		return v, nil
	}

	// Commit to the write batch
	var commit memory.CommitFunc
	if writable {
		commit = d.commit
	}

	forEach := func(fn func(key, value []byte) error) error {
		it := rd.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return errors.UnknownError.WithFormat("iterate: %w", err)
			}
			err = fn(item.KeyCopy(nil), v)
			if err != nil {
				return err
			}
		}
		return nil
	}

	discard := func() {
		rd.Discard()
		mTxnOpen.Dec()
	}

	// The memory changeset caches entries in a map so Get will see values
	// updated with Put, regardless of the underlying transaction and write
	// batch behavior
	return memory.NewChangeSet(memory.ChangeSetOptions{
		Prefix:  prefix,
		Get:     get,
		Commit:  commit,
		ForEach: forEach,
		Discard: discard,
	})
}

func (d *Database) commit(entries map[string]memory.Entry) error {
	l, err := d.lock(false)
	if err != nil {
		return err
	}
	defer l.Unlock()

	start := time.Now()
	defer func() { mCommitDuration.Set(time.Since(start).Seconds()) }()

	// Use a write batch for writing to work around Badger's limitations
	wr := d.badger.NewWriteBatch()
	defer wr.Cancel()

	for _, e := range entries {
		if e.Delete {
			err = wr.Delete(e.Key)
		} else {
			err = wr.Set(e.Key, e.Value)
		}
		if err != nil {
			return errors.UnknownError.WithFormat("commit: %w", err)
		}
	}

	return wr.Flush()
}

// Close closes the underlying database.
func (d *Database) Close() error {
	if l, err := d.lock(true); err != nil {
		return err
	} else {
		defer l.Unlock()
	}

	d.ready = false
	mDbOpen.Dec()
	return d.badger.Close()
}

func (d *Database) gc() {
	for {
		time.Sleep(d.gcInterval)

		// Still open?
		l, err := d.lock(false)
		if err != nil {
			return
		}

		// Run GC if 50% space could be reclaimed
		start := time.Now()
		err = d.badger.RunValueLogGC(0.5)
		if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			slog.Error("Badger GC failed", "error", err, "module", "badger")
		}
		mGcRun.Inc()
		mGcDuration.Set(time.Since(start).Seconds())

		// Release the lock
		l.Unlock()
	}
}

// lock acquires a lock on the ready mutex and checks for readiness. This
// prevents races between commits and Close.
func (d *Database) lock(closing bool) (sync.Locker, error) {
	var l sync.Locker = &d.mu
	if !closing {
		l = d.mu.RLocker()
	}

	l.Lock()
	if !d.ready {
		l.Unlock()
		return nil, errors.NotReady.With("database is closed")
	}

	return l, nil
}

type slogger struct{}

func (l slogger) format(format string, args ...interface{}) string {
	s := fmt.Sprintf(format, args...)
	return strings.TrimRight(s, "\n")
}

func (l slogger) Errorf(format string, args ...interface{}) {
	slog.Error(l.format(format, args...), "module", "badger")
}

func (l slogger) Warningf(format string, args ...interface{}) {
	slog.Warn(l.format(format, args...), "module", "badger")
}

func (l slogger) Infof(format string, args ...interface{}) {
	slog.Info(l.format(format, args...), "module", "badger")
}

func (l slogger) Debugf(format string, args ...interface{}) {
	slog.Debug(l.format(format, args...), "module", "badger")
}
