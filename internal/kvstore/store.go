// Package kvstore is the Local KV Store (spec §4.2): an in-memory map with
// single-value and set-valued reads, gated by a monotone logical commit
// time.
package kvstore

import (
	"sync"
	"time"

	kverrors "github.com/bidscape/kvshard/internal/errors"
	"github.com/bidscape/kvshard/internal/model"
)

// Store is a process-local, reader/writer-synchronized key-value cache.
type Store struct {
	mu      sync.RWMutex
	entries map[string]model.CacheEntry

	stopCleanup chan struct{}
}

// New builds an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]model.CacheEntry)}
}

// GetValues returns the single-string value for every key present in the
// store among keys. Absent keys are simply not present in the result.
func (s *Store) GetValues(keys []string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if e, ok := s.entries[k]; ok && e.Kind == model.ValueKindString {
			out[k] = e.StringValue
		}
	}
	return out
}

// GetKeyValueSet returns the string-set value for every key present in the
// store among keys.
func (s *Store) GetKeyValueSet(keys []string) map[string]map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]struct{}, len(keys))
	for _, k := range keys {
		if e, ok := s.entries[k]; ok && e.Kind == model.ValueKindStringSet {
			out[k] = e.StringSet
		}
	}
	return out
}

// GetUint32ValueSet returns the uint32-set value for every key present in
// the store among keys.
func (s *Store) GetUint32ValueSet(keys []string) map[string]map[uint32]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[uint32]struct{}, len(keys))
	for _, k := range keys {
		if e, ok := s.entries[k]; ok && e.Kind == model.ValueKindUint32Set {
			out[k] = e.Uint32Set
		}
	}
	return out
}

// GetTagged returns a SingleLookupResult for every requested key, tagged
// with whatever kind that key actually holds. When lookupSets is false,
// only string-valued keys are considered (set-valued keys are treated as
// absent, matching get_key_values' single-valued contract); when true,
// only set-valued keys are considered (string-valued keys are treated as
// absent), and the result carries whichever set kind the entry holds
// (string-set or uint32-set) — the wire request only flags "I want sets",
// the entry's own kind decides which. A key with no matching entry gets an
// explicit NotFound status (spec §3: every requested key appears exactly
// once in the assembled response), the same contract
// local_lookup.cc's ProcessKeys/ProcessValueSetKeys enforce.
func (s *Store) GetTagged(keys []string, lookupSets bool) map[string]model.SingleLookupResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.SingleLookupResult, len(keys))
	for _, k := range keys {
		e, ok := s.entries[k]
		if ok {
			switch e.Kind {
			case model.ValueKindString:
				if !lookupSets {
					out[k] = model.StringResult(e.StringValue)
					continue
				}
			case model.ValueKindStringSet:
				if lookupSets {
					out[k] = model.StringSetResult(setKeys(e.StringSet))
					continue
				}
			case model.ValueKindUint32Set:
				if lookupSets {
					out[k] = model.Uint32SetResult(setUint32Keys(e.Uint32Set))
					continue
				}
			}
		}

		notFound := kverrors.NotFound(k)
		out[k] = model.ErrorResult(int32(notFound.Code), notFound.Message)
	}
	return out
}

func setKeys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func setUint32Keys(s map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// UpdateString writes a single-string value for key if commitTime is
// strictly greater than the stored commit time (or the key is new).
func (s *Store) UpdateString(key, value string, commitTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shouldApplyLocked(key, commitTime) {
		return
	}
	s.entries[key] = model.CacheEntry{Kind: model.ValueKindString, StringValue: value, CommitTime: commitTime}
}

// UpdateStringSet writes a string-set value for key under the same
// commit-time monotonicity rule.
func (s *Store) UpdateStringSet(key string, value []string, commitTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shouldApplyLocked(key, commitTime) {
		return
	}
	set := make(map[string]struct{}, len(value))
	for _, v := range value {
		set[v] = struct{}{}
	}
	s.entries[key] = model.CacheEntry{Kind: model.ValueKindStringSet, StringSet: set, CommitTime: commitTime}
}

// UpdateUint32Set writes a uint32-set value for key under the same
// commit-time monotonicity rule.
func (s *Store) UpdateUint32Set(key string, value []uint32, commitTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shouldApplyLocked(key, commitTime) {
		return
	}
	set := make(map[uint32]struct{}, len(value))
	for _, v := range value {
		set[v] = struct{}{}
	}
	s.entries[key] = model.CacheEntry{Kind: model.ValueKindUint32Set, Uint32Set: set, CommitTime: commitTime}
}

// Delete marks key deleted if commitTime is strictly greater than the
// stored commit time; a delete with commitTime <= the stored time is a
// no-op. The key is not removed from the map outright: a tombstone entry
// keeps commitTime as the new high-water mark, the same way
// key_value_cache.h retains a deleted key's CacheValue.last_logical_commit_time
// instead of erasing it — without this, a stale Update/UpdateStringSet/
// UpdateUint32Set carrying a commit time older than the delete (but newer
// than whatever the key held before) would find no entry, treat itself as
// the first write, and resurrect a key that was validly deleted. Call
// RemoveDeletedKeys periodically to reclaim tombstones once their commit
// time is safely in the past.
func (s *Store) Delete(key string, commitTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shouldApplyLocked(key, commitTime) {
		return
	}
	s.entries[key] = model.CacheEntry{Kind: model.ValueKindDeleted, CommitTime: commitTime}
}

// RemoveDeletedKeys reclaims tombstones left by Delete whose commit time is
// at or before commitTime, the same cleanup boundary
// key_value_cache.h's RemoveDeletedKeys enforces. It never touches live
// entries, only ones Delete has already tombstoned.
func (s *Store) RemoveDeletedKeys(commitTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.Kind == model.ValueKindDeleted && e.CommitTime <= commitTime {
			delete(s.entries, k)
		}
	}
}

// StartCleanup launches the periodic tombstone reclamation key_value_cache.h
// leaves as an explicit TODO ("cache cleanup should be done periodically
// from a background thread") rather than wiring itself: every interval, it
// reclaims tombstones older than retention, assuming logical commit times
// track wall-clock nanoseconds closely enough (the data-loading
// collaborator stamps commit_time at write time in practice). Mirrors the
// teacher's own ticker-driven cache sweep in
// coordinator/internal/store/cache.go.
func (s *Store) StartCleanup(interval, retention time.Duration) {
	s.stopCleanup = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCleanup:
				return
			case <-ticker.C:
				s.RemoveDeletedKeys(time.Now().Add(-retention).UnixNano())
			}
		}
	}()
}

// StopCleanup halts the goroutine StartCleanup launched, if any.
func (s *Store) StopCleanup() {
	if s.stopCleanup != nil {
		close(s.stopCleanup)
	}
}

// shouldApplyLocked reports whether a mutation at commitTime may proceed.
// Callers must hold s.mu for writing.
func (s *Store) shouldApplyLocked(key string, commitTime int64) bool {
	existing, ok := s.entries[key]
	if !ok {
		return true
	}
	return commitTime > existing.CommitTime
}

// Reset clears the store (process-wide reload).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]model.CacheEntry)
}

// Len reports the current live entry count (tombstones left by Delete
// don't count), for metrics/tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Kind != model.ValueKindDeleted {
			n++
		}
	}
	return n
}
