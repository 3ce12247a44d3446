// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package memory

import (
	"bytes"
	"sort"
	"sync"

	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

type Database struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ keyvalue.Beginner = (*Database)(nil)

func New() *Database {
	return &Database{entries: map[string][]byte{}}
}

// Begin begins a change set.
func (d *Database) Begin(prefix []byte, writable bool) keyvalue.ChangeSet {
	var commit CommitFunc
	if writable {
		commit = d.commit
	}
	return NewChangeSet(ChangeSetOptions{
		Prefix:  prefix,
		Get:     d.get,
		Commit:  commit,
		ForEach: d.forEach,
	})
}

// Export exports the database as a set of entries. Export is not safe to use
// concurrently with Import.
func (d *Database) Export() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entries := make([]Entry, 0, len(d.entries))
	for k, v := range d.entries {
		entries = append(entries, Entry{Key: []byte(k), Value: bytes.Clone(v)})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].Key, entries[j].Key) < 0 })
	return entries
}

// Import imports a set of entries into the database.
func (d *Database) Import(entries []Entry) error {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[string(e.Key)] = e
	}
	return d.commit(m)
}

func (d *Database) get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.entries[string(key)]
	if ok {
		return bytes.Clone(v), nil
	}
	return nil, errors.NotFound.WithFormat("%x not found", key)
}

func (d *Database) commit(entries map[string]Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, e := range entries {
		if e.Delete {
			delete(d.entries, k)
		} else {
			d.entries[k] = bytes.Clone(e.Value)
		}
	}
	return nil
}

func (d *Database) forEach(fn func(key, value []byte) error) error {
	d.mu.RLock()
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	values := make(map[string][]byte, len(keys))
	for _, k := range keys {
		values[k] = d.entries[k]
	}
	d.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), bytes.Clone(values[k])); err != nil {
			return err
		}
	}
	return nil
}
