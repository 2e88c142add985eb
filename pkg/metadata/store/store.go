// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package store implements the metadata store (spec §4.1): a concurrent
// alias-to-resource and resource-to-record mapping with multi-alias
// lookup, monotonic record replacement, expiry, and change callbacks.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/record"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/resource"
	"github.com/etsangsplk/metadata-agent/pkg/util/log"
)

// ErrNotFound is returned by LookupResource when the alias is not registered.
var ErrNotFound = errors.New("not found")

// ErrEmptyAlias is returned by UpdateResource when an alias in the batch is empty.
var ErrEmptyAlias = errors.New("empty alias")

// entry pairs a resource with its record and bookkeeping. Entries are keyed
// by the canonical resource.Key(), since resource.Resource is not itself
// comparable (it holds a map).
type entry struct {
	res            resource.Resource
	rec            record.Record
	hasRecord      bool
	lastCollection time.Time
}

// ChangeCallback is invoked after a store mutation commits, outside the
// store's write lock. Callbacks must not call back into mutating Store
// methods (UpdateResource, UpdateMetadata, PurgeDeletedEntries) — this is a contract, not
// enforced by a re-entrancy lock, per spec §4.1.
type ChangeCallback func(Event)

// EventKind distinguishes the kind of change a ChangeCallback observes.
type EventKind int

// Event kinds delivered to ChangeCallback subscribers.
const (
	EventResourceUpdated EventKind = iota
	EventResourceShadowed
	EventMetadataUpdated
	EventMetadataDropped
	EventPurged
)

// Event describes a single store mutation delivered to subscribers.
type Event struct {
	Kind     EventKind
	Alias    string
	Resource resource.Resource
	Record   record.Record
}

// Options configures a Store.
type Options struct {
	// ExpireAfter is how long a resource may go without a fresh
	// UpdateMetadata call before the sweeper evicts it. Zero disables
	// time-based expiry (but purge_deleted_entries still works).
	ExpireAfter time.Duration
	// ExpireInterval is how often the sweeper runs. Defaults to half of
	// ExpireAfter, per spec §4.1.
	ExpireInterval time.Duration
	// PurgeDeleted, when true, additionally runs purge_deleted_entries on
	// every sweep, matching metadata_reporter_purge_deleted.
	PurgeDeleted bool
	// Subscribers registered at construction time.
	Subscribers []ChangeCallback
}

// Store is the concurrent metadata store described in spec §4.1. All
// exported methods are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// aliasToKey and aliases implement the many-to-one alias(string) ->
	// resource mapping. entries is the resource->record mapping keyed by
	// resource.Key().
	aliasToKey map[string]string
	entries    map[string]*entry
	aliases    map[string]map[string]struct{} // resourceKey -> set of aliases

	expireAfter    time.Duration
	expireInterval time.Duration
	purgeDeleted   bool

	subMu       sync.RWMutex
	subscribers []ChangeCallback
	hasSubs     atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Store and starts its expiry sweeper goroutine. Callers
// should call Stop when the store is no longer needed.
func New(opts Options) *Store {
	interval := opts.ExpireInterval
	if interval <= 0 {
		if opts.ExpireAfter > 0 {
			interval = opts.ExpireAfter / 2
		} else {
			interval = 30 * time.Second
		}
	}

	s := &Store{
		aliasToKey:     make(map[string]string),
		entries:        make(map[string]*entry),
		aliases:        make(map[string]map[string]struct{}),
		expireAfter:    opts.ExpireAfter,
		expireInterval: interval,
		purgeDeleted:   opts.PurgeDeleted,
		subscribers:    append([]ChangeCallback(nil), opts.Subscribers...),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	s.hasSubs.Store(len(s.subscribers) > 0)

	go s.sweepLoop()
	return s
}

// Subscribe registers an additional change callback.
func (s *Store) Subscribe(cb ChangeCallback) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, cb)
	s.hasSubs.Store(true)
}

func (s *Store) notify(events ...Event) {
	if !s.hasSubs.Load() {
		return
	}
	s.subMu.RLock()
	subs := append([]ChangeCallback(nil), s.subscribers...)
	s.subMu.RUnlock()

	for _, ev := range events {
		for _, cb := range subs {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("metadata store: change callback panicked: %v", r)
					}
				}()
				cb(ev)
			}()
		}
	}
}

// UpdateResource establishes alias -> resource for each alias in ids. If an
// alias already points to a different resource, the newer binding wins and
// an EventResourceShadowed is emitted for the shadowed alias. If any alias
// in the batch is empty, the whole batch is rejected with ErrEmptyAlias and
// no aliases from it are applied (spec §8 Boundaries: "others succeed"
// refers to other calls, not other items within one rejected batch).
func (s *Store) UpdateResource(ids []string, res resource.Resource) error {
	for _, id := range ids {
		if id == "" {
			return ErrEmptyAlias
		}
	}
	if len(ids) == 0 {
		return nil
	}

	key := res.Key()
	var events []Event

	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.entries[key] = &entry{res: res}
	} else {
		s.entries[key].res = res
	}
	if s.aliases[key] == nil {
		s.aliases[key] = make(map[string]struct{})
	}
	for _, id := range ids {
		if prevKey, ok := s.aliasToKey[id]; ok && prevKey != key {
			delete(s.aliases[prevKey], id)
			events = append(events, Event{Kind: EventResourceShadowed, Alias: id, Resource: res})
		}
		s.aliasToKey[id] = key
		s.aliases[key][id] = struct{}{}
	}
	s.mu.Unlock()

	events = append(events, Event{Kind: EventResourceUpdated, Resource: res})
	s.notify(events...)
	return nil
}

// UpdateMetadata installs or replaces the record for res, subject to
// invariants 3 and 4 (spec §3): a record with an earlier CollectedAt than
// what is stored is silently dropped (StoreConflict, spec §7), and a
// same-CollectedAt tombstone supersedes a non-tombstone. Consumes rec: the
// caller must not retain a mutable alias to rec.RawContent afterward.
func (s *Store) UpdateMetadata(res resource.Resource, rec record.Record) {
	key := res.Key()
	now := time.Now()

	var ev Event
	dropped := false

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{res: res}
		s.entries[key] = e
	}
	if !e.hasRecord || rec.Supersedes(e.rec) {
		e.rec = rec
		e.hasRecord = true
		e.lastCollection = now
		ev = Event{Kind: EventMetadataUpdated, Resource: res, Record: rec}
	} else {
		dropped = true
	}
	s.mu.Unlock()

	if dropped {
		s.notify(Event{Kind: EventMetadataDropped, Resource: res, Record: rec})
		return
	}
	s.notify(ev)
}

// LookupResource resolves alias to its currently bound resource, or returns
// ErrNotFound.
func (s *Store) LookupResource(alias string) (resource.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.aliasToKey[alias]
	if !ok {
		return resource.Resource{}, ErrNotFound
	}
	e, ok := s.entries[key]
	if !ok {
		return resource.Resource{}, ErrNotFound
	}
	return e.res, nil
}

// MetadataEntry is one row of a get_metadata_map snapshot.
type MetadataEntry struct {
	Resource resource.Resource
	Record   record.Record
}

// GetMetadataMap returns a consistent point-in-time copy of the
// resource->record map, excluding resources with no record yet
// (invariant 1 permits registering aliases before any record exists).
func (s *Store) GetMetadataMap() []MetadataEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MetadataEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.hasRecord {
			continue
		}
		out = append(out, MetadataEntry{Resource: e.res, Record: e.rec})
	}
	return out
}

// PurgeDeletedEntries removes every resource whose record is a tombstone or
// whose ExpiresAt has passed, along with all aliases pointing to it
// (spec §4.1). It returns the number of resources purged.
func (s *Store) PurgeDeletedEntries() int {
	now := time.Now()
	return s.purge(func(e *entry) bool {
		return e.hasRecord && e.rec.PurgeEligible(now)
	})
}

func (s *Store) purge(eligible func(*entry) bool) int {
	var events []Event

	s.mu.Lock()
	var purgedKeys []string
	for key, e := range s.entries {
		if eligible(e) {
			purgedKeys = append(purgedKeys, key)
		}
	}
	for _, key := range purgedKeys {
		e := s.entries[key]
		for alias := range s.aliases[key] {
			delete(s.aliasToKey, alias)
		}
		delete(s.aliases, key)
		delete(s.entries, key)
		events = append(events, Event{Kind: EventPurged, Resource: e.res})
	}
	s.mu.Unlock()

	s.notify(events...)
	return len(purgedKeys)
}

// sweepLoop runs sweepOnce every expireInterval until Stop. A sweep evicts
// resources last collected too long ago or past an explicit ExpiresAt;
// tombstones are evicted by a sweep only when purgeDeleted is set.
func (s *Store) sweepLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.expireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Store) sweepOnce() {
	now := time.Now()
	n := s.purge(func(e *entry) bool {
		if !e.hasRecord {
			return false
		}
		if s.purgeDeleted && e.rec.PurgeEligible(now) {
			return true
		}
		return e.rec.StaleEligible(now, e.lastCollection, s.expireAfter)
	})
	if n > 0 {
		log.Debugf("metadata store: expiry sweep purged %d resources", n)
	}
}

// Stop halts the expiry sweeper. Stop is idempotent and returns once the
// sweeper goroutine has exited, or when ctx is done, whichever comes first.
func (s *Store) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
