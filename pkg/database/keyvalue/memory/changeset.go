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

// Entry is a pending write. Key is the full (prefixed) key.
type Entry struct {
	Key    []byte
	Value  []byte
	Delete bool
}

type GetFunc func(key []byte) ([]byte, error)
type CommitFunc func(map[string]Entry) error
type ForEachFunc func(func(key, value []byte) error) error

type ChangeSetOptions struct {
	Prefix  []byte
	Get     GetFunc
	Commit  CommitFunc
	ForEach ForEachFunc
	Discard func()
}

// ChangeSet buffers writes in memory on top of a parent. Reads see buffered
// writes before falling through to the parent.
type ChangeSet struct {
	mu      sync.RWMutex
	opts    ChangeSetOptions
	entries map[string]Entry
	done    bool
}

var _ keyvalue.ChangeSet = (*ChangeSet)(nil)

func NewChangeSet(opts ChangeSetOptions) *ChangeSet {
	return &ChangeSet{opts: opts, entries: map[string]Entry{}}
}

func (c *ChangeSet) key(key []byte) []byte {
	if len(c.opts.Prefix) == 0 {
		return key
	}
	k := make([]byte, 0, len(c.opts.Prefix)+len(key))
	k = append(k, c.opts.Prefix...)
	return append(k, key...)
}

// Begin begins a nested change set. Committing it writes into this change
// set, not the underlying database.
func (c *ChangeSet) Begin(prefix []byte, writable bool) keyvalue.ChangeSet {
	var commit CommitFunc
	if writable {
		commit = c.putAll
	}

	return NewChangeSet(ChangeSetOptions{
		Prefix:  prefix,
		Get:     c.Get,
		Commit:  commit,
		ForEach: c.ForEach,
	})
}

func (c *ChangeSet) Get(key []byte) ([]byte, error) {
	k := c.key(key)

	c.mu.RLock()
	e, ok := c.entries[string(k)]
	c.mu.RUnlock()

	switch {
	case ok && e.Delete:
		return nil, errors.NotFound.WithFormat("%x not found", k)
	case ok:
		return bytes.Clone(e.Value), nil
	case c.opts.Get == nil:
		return nil, errors.NotFound.WithFormat("%x not found", k)
	}
	return c.opts.Get(k)
}

func (c *ChangeSet) Put(key, value []byte) error {
	k := c.key(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NotAllowed.With("change set has been committed or discarded")
	}
	c.entries[string(k)] = Entry{Key: k, Value: bytes.Clone(value)}
	return nil
}

func (c *ChangeSet) Delete(key []byte) error {
	k := c.key(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NotAllowed.With("change set has been committed or discarded")
	}
	c.entries[string(k)] = Entry{Key: k, Delete: true}
	return nil
}

// ForEach merges the parent's entries with the pending entries. Only keys
// under the change set's prefix are visited, with the prefix removed.
func (c *ChangeSet) ForEach(fn func(key, value []byte) error) error {
	c.mu.RLock()
	pending := make(map[string]Entry, len(c.entries))
	for k, e := range c.entries {
		pending[k] = e
	}
	c.mu.RUnlock()

	merged := map[string][]byte{}
	if c.opts.ForEach != nil {
		err := c.opts.ForEach(func(key, value []byte) error {
			if bytes.HasPrefix(key, c.opts.Prefix) {
				merged[string(key)] = value
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	for k, e := range pending {
		if e.Delete {
			delete(merged, k)
		} else {
			merged[k] = e.Value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		err := fn([]byte(k)[len(c.opts.Prefix):], bytes.Clone(merged[k]))
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *ChangeSet) putAll(entries map[string]Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NotAllowed.With("change set has been committed or discarded")
	}
	for _, e := range entries {
		e.Key = c.key(e.Key)
		c.entries[string(e.Key)] = e
	}
	return nil
}

func (c *ChangeSet) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return errors.NotAllowed.With("change set has been committed or discarded")
	}
	if c.opts.Commit == nil {
		return errors.NotAllowed.With("change set is not writable")
	}

	err := c.opts.Commit(c.entries)
	if err != nil {
		return err
	}
	c.entries = map[string]Entry{}
	c.done = true
	if c.opts.Discard != nil {
		c.opts.Discard()
	}
	return nil
}

func (c *ChangeSet) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	c.entries = nil
	if c.opts.Discard != nil {
		c.opts.Discard()
	}
}
