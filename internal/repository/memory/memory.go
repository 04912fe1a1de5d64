// Package memory is an in-process document store. It backs the local
// fallback cache when no Redis is configured and serves as the store in tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mamadbah2/stockcount/internal/repository/store"
)

type subscriber struct {
	onUpdate func([]store.Document)
	onError  func(error)

	// mu serializes deliveries; last is the newest version delivered, so a
	// slower notification never overwrites a newer snapshot.
	mu   sync.Mutex
	last uint64
}

func (sub *subscriber) deliverInitial(version uint64, docs []store.Document) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.last > version {
		return
	}
	sub.last = version
	if sub.onUpdate != nil {
		sub.onUpdate(docs)
	}
}

func (sub *subscriber) deliver(version uint64, docs []store.Document) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if version <= sub.last {
		return
	}
	sub.last = version
	if sub.onUpdate != nil {
		sub.onUpdate(docs)
	}
}

// Store keeps collections as maps of key to document. Insertion order is
// remembered so FetchAll is deterministic. Subscription callbacks must not
// write back into the same store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
	order       map[string][]string
	subs        map[string]map[int]*subscriber
	nextSub     int
	version     uint64
	failure     error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]store.Document),
		order:       make(map[string][]string),
		subs:        make(map[string]map[int]*subscriber),
	}
}

var _ store.Store = (*Store)(nil)

// FailWith makes every subsequent operation return err; nil restores normal
// behaviour. Subscribers are notified through onError.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.failure = err
	var targets []*subscriber
	if err != nil {
		for _, subs := range s.subs {
			for _, sub := range subs {
				targets = append(targets, sub)
			}
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// FetchAll returns copies of every document in the collection.
func (s *Store) FetchAll(_ context.Context, collection string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failure != nil {
		return nil, s.failure
	}
	return s.snapshotLocked(collection), nil
}

// Subscribe delivers the current snapshot immediately and again after every
// change to the collection.
func (s *Store) Subscribe(_ context.Context, collection string, onUpdate func([]store.Document), onError func(error)) (func(), error) {
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return nil, err
	}
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[int]*subscriber)
	}
	id := s.nextSub
	s.nextSub++
	sub := &subscriber{onUpdate: onUpdate, onError: onError}
	s.subs[collection][id] = sub
	snapshot := s.snapshotLocked(collection)
	version := s.version
	s.mu.Unlock()

	sub.deliverInitial(version, snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[collection], id)
			s.mu.Unlock()
		})
	}, nil
}

// WriteOne upserts a document. With Merge the given fields are set on the
// existing document.
func (s *Store) WriteOne(_ context.Context, collection, key string, doc store.Document, opts store.WriteOptions) error {
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return err
	}

	next := store.CloneDocument(doc)
	if opts.Merge {
		if existing, ok := s.collections[collection][key]; ok {
			merged := store.CloneDocument(existing)
			for k, v := range next {
				merged[k] = v
			}
			next = merged
		}
	}
	s.putLocked(collection, key, next)
	s.version++
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// DeleteOne removes a document; deleting a missing key is not an error.
func (s *Store) DeleteOne(_ context.Context, collection, key string) error {
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return err
	}
	if _, ok := s.collections[collection][key]; ok {
		delete(s.collections[collection], key)
		keys := s.order[collection]
		for i, k := range keys {
			if k == key {
				s.order[collection] = append(keys[:i:i], keys[i+1:]...)
				break
			}
		}
	}
	s.version++
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// BatchWrite upserts every document, replacing existing ones. Keys are
// applied in sorted order.
func (s *Store) BatchWrite(_ context.Context, collection string, docs map[string]store.Document) error {
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return err
	}
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.putLocked(collection, k, store.CloneDocument(docs[k]))
	}
	s.version++
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

// DeleteAll empties a collection.
func (s *Store) DeleteAll(_ context.Context, collection string) error {
	s.mu.Lock()
	if s.failure != nil {
		err := s.failure
		s.mu.Unlock()
		return err
	}
	delete(s.collections, collection)
	delete(s.order, collection)
	s.version++
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *Store) putLocked(collection, key string, doc store.Document) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]store.Document)
	}
	if _, exists := s.collections[collection][key]; !exists {
		s.order[collection] = append(s.order[collection], key)
	}
	doc[store.KeyField] = key
	s.collections[collection][key] = doc
}

func (s *Store) snapshotLocked(collection string) []store.Document {
	keys := s.order[collection]
	out := make([]store.Document, 0, len(keys))
	for _, k := range keys {
		out = append(out, store.CloneDocument(s.collections[collection][k]))
	}
	return out
}

func (s *Store) notify(collection string) {
	s.mu.RLock()
	subs := make([]*subscriber, 0, len(s.subs[collection]))
	for _, sub := range s.subs[collection] {
		subs = append(subs, sub)
	}
	snapshot := s.snapshotLocked(collection)
	version := s.version
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(version, snapshot)
	}
}
