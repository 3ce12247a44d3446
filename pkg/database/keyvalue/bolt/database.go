// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package bolt

import (
	"bytes"

	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/memory"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "aux"

type Database struct {
	opts
	bolt *bolt.DB
}

type opts struct {
	bucket []byte
}

type Option func(*opts) error

// WithBucket stores all entries in the named bucket.
func WithBucket(name string) Option {
	return func(o *opts) error {
		if name == "" {
			return errors.BadRequest.With("bucket name is empty")
		}
		o.bucket = []byte(name)
		return nil
	}
}

func Open(filepath string, o ...Option) (*Database, error) {
	d := new(Database)
	d.bucket = []byte(DefaultBucket)
	var err error
	for _, o := range o {
		err = o(&d.opts)
		if err != nil {
			return nil, errors.UnknownError.Wrap(err)
		}
	}

	d.bolt, err = bolt.Open(filepath, 0600, nil)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("open %q: %w", filepath, err)
	}

	err = d.bolt.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(d.bucket)
		return err
	})
	if err != nil {
		_ = d.bolt.Close()
		return nil, errors.UnknownError.WithFormat("create bucket: %w", err)
	}

	return d, nil
}

// Begin begins a change set.
func (d *Database) Begin(prefix []byte, writable bool) keyvalue.ChangeSet {
	// Use a read-only transaction for reading
	rd, err := d.bolt.Begin(false)

	discard := func() {
		if rd != nil {
			_ = rd.Rollback()
		}
	}

	get := func(key []byte) ([]byte, error) {
		return d.get(rd, err, key)
	}

	var commit memory.CommitFunc
	if writable {
		commit = func(entries map[string]memory.Entry) error {
			return d.commit(rd, entries)
		}
	}

	forEach := func(fn func(key, value []byte) error) error {
		return d.forEach(rd, err, fn)
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

func (d *Database) get(txn *bolt.Tx, err error, key []byte) ([]byte, error) {
	if err != nil {
		return nil, errors.UnknownError.WithFormat("begin: %w", err)
	}

	b := txn.Bucket(d.bucket)
	if b == nil {
		return nil, errors.NotFound.WithFormat("%x not found", key)
	}

	v := b.Get(key)
	if v == nil {
		return nil, errors.NotFound.WithFormat("%x not found", key)
	}
	return bytes.Clone(v), nil
}

func (d *Database) commit(rd *bolt.Tx, entries map[string]memory.Entry) error {
	// Discard the read transaction to unlock the database
	if rd != nil {
		_ = rd.Rollback()
	}

	return d.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(d.bucket)
		for _, e := range entries {
			var err error
			if e.Delete {
				err = b.Delete(e.Key)
			} else {
				err = b.Put(e.Key, e.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Database) forEach(txn *bolt.Tx, err error, fn func(key, value []byte) error) error {
	if err != nil {
		return errors.UnknownError.WithFormat("begin: %w", err)
	}

	b := txn.Bucket(d.bucket)
	if b == nil {
		return nil
	}
	return b.ForEach(func(k, v []byte) error {
		return fn(bytes.Clone(k), bytes.Clone(v))
	})
}

func (d *Database) Close() error {
	return d.bolt.Close()
}
