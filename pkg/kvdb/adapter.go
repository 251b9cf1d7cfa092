// Copyright 2025 DeFlow
//
// KV Adapter for CometBFT Database Integration
// Wraps CometBFT's dbm.DB interface to implement workflow.KV

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KVAdapter wraps a CometBFT dbm.DB and exposes the workflow.KV interface.
// This allows WorkflowStore to use CometBFT's persistent storage directly,
// the same way the teacher's LedgerStore does.
type KVAdapter struct {
	db dbm.DB
}

// NewKVAdapter creates a new KVAdapter for the given underlying DB.
func NewKVAdapter(db dbm.DB) *KVAdapter {
	return &KVAdapter{db: db}
}

// Get implements workflow.KV.Get
func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}

	// CometBFT DB returns (val, error)
	if v, err := a.db.Get(key); err != nil {
		return nil, err
	} else {
		// v may be nil if key not found – that's fine, the store treats nil as "not present".
		return v, nil
	}
}

// Set implements workflow.KV.Set
func (a *KVAdapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}

	// Use SetSync for durable writes at commit time
	if err := a.db.SetSync(key, value); err != nil {
		return err
	}
	return nil
}

// Delete implements workflow.KV.Delete
func (a *KVAdapter) Delete(key []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.DeleteSync(key)
}

// IteratePrefix implements workflow.KV.IteratePrefix, walking every key with
// the given prefix in ascending order and invoking fn(key, value) for each.
// Iteration stops early if fn returns false.
func (a *KVAdapter) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	if a.db == nil {
		return nil
	}

	end := prefixUpperBound(prefix)
	it, err := a.db.Iterator(prefix, end)
	if err != nil {
		return err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

// prefixUpperBound returns the smallest key that sorts after every key with
// the given prefix, for use as an exclusive iterator end bound. Returns nil
// (meaning "no upper bound") if prefix is all 0xFF bytes.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
