package counting

import (
	"sort"
	"time"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/catalog"
	"github.com/mamadbah2/stockcount/internal/service/reporting"
)

// pendingWrite is a queued change that only reached the local store.
type pendingWrite struct {
	Collection string    `bson:"collection"`
	Key        string    `bson:"key"`
	Delete     bool      `bson:"delete"`
	QueuedAt   time.Time `bson:"queued_at"`
}

func pendingKey(collection, key string) string {
	return collection + "/" + key
}

// View is the decoded, merged state every read operation works from.
type View struct {
	Items     []models.MasterItem
	Locations []models.MasterLocation
	Records   []models.AuditRecord
	States    []models.LocationState
	Damage    []models.DamageReport
	Index     *catalog.Index
	// Restricted is set while at least one collection is served from the
	// local cache because the primary store refused or failed.
	Restricted bool
	Pending    int
}

// snapshot is immutable once published. Updates copy the maps they touch
// and swap the whole snapshot.
type snapshot struct {
	remote  map[string][]store.Document
	local   map[string][]store.Document
	pending map[string]pendingWrite
	failed  map[string]bool
	view    View
}

func newSnapshot() *snapshot {
	s := &snapshot{
		remote:  map[string][]store.Document{},
		local:   map[string][]store.Document{},
		pending: map[string]pendingWrite{},
		failed:  map[string]bool{},
	}
	s.derive()
	return s
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		remote:  make(map[string][]store.Document, len(s.remote)),
		local:   make(map[string][]store.Document, len(s.local)),
		pending: make(map[string]pendingWrite, len(s.pending)),
		failed:  make(map[string]bool, len(s.failed)),
	}
	for k, v := range s.remote {
		next.remote[k] = v
	}
	for k, v := range s.local {
		next.local[k] = v
	}
	for k, v := range s.pending {
		next.pending[k] = v
	}
	for k, v := range s.failed {
		next.failed[k] = v
	}
	return next
}

// fromLocal reports whether collection must be read from the local cache.
func (s *snapshot) fromLocal(collection string) bool {
	if s.failed[collection] {
		return true
	}
	_, loaded := s.remote[collection]
	return !loaded
}

// pendingDocs splits the local documents of collection into queued writes,
// and returns the keys of queued deletions.
func (s *snapshot) pendingDocs(collection string) ([]store.Document, map[string]struct{}) {
	deleted := map[string]struct{}{}
	var docs []store.Document
	for _, p := range s.pending {
		if p.Collection == collection && p.Delete {
			deleted[p.Key] = struct{}{}
		}
	}
	for _, doc := range s.local[collection] {
		key, _ := doc[store.KeyField].(string)
		if p, ok := s.pending[pendingKey(collection, key)]; ok && !p.Delete {
			docs = append(docs, doc)
		}
	}
	return docs, deleted
}

// findLocal returns the local copy of a document.
func (s *snapshot) findLocal(collection, key string) (store.Document, bool) {
	for _, doc := range s.local[collection] {
		if id, _ := doc[store.KeyField].(string); id == key {
			return doc, true
		}
	}
	return nil, false
}

func (s *snapshot) derive() {
	items := decodeCollection[models.MasterItem](s, store.CollectionMasterItems)
	locs := decodeCollection[models.MasterLocation](s, store.CollectionMasterLocations)
	damage := decodeCollection[models.DamageReport](s, store.CollectionDamageReports)

	var records []models.AuditRecord
	var states []models.LocationState
	if s.fromLocal(store.CollectionAuditLogs) {
		records, _ = store.DecodeAll[models.AuditRecord](s.local[store.CollectionAuditLogs])
	} else {
		remote, _ := store.DecodeAll[models.AuditRecord](s.remote[store.CollectionAuditLogs])
		docs, deleted := s.pendingDocs(store.CollectionAuditLogs)
		local, _ := store.DecodeAll[models.AuditRecord](docs)
		records = dropDeleted(reporting.MergeRecords(local, remote), deleted)
	}
	if s.fromLocal(store.CollectionLocationStates) {
		states, _ = store.DecodeAll[models.LocationState](s.local[store.CollectionLocationStates])
	} else {
		states, _ = store.DecodeAll[models.LocationState](s.remote[store.CollectionLocationStates])
		docs, _ := s.pendingDocs(store.CollectionLocationStates)
		local, _ := store.DecodeAll[models.LocationState](docs)
		states = append(states, local...)
	}

	sort.SliceStable(damage, func(i, j int) bool { return damage[i].ReportedAt.Before(damage[j].ReportedAt) })

	s.view = View{
		Items:      items,
		Locations:  locs,
		Records:    records,
		States:     states,
		Damage:     damage,
		Index:      catalog.NewIndex(items),
		Restricted: len(s.failed) > 0,
		Pending:    len(s.pending),
	}
}

// decodeCollection reads reference collections: the remote copy with queued
// local writes added where the remote has no document under that key.
func decodeCollection[T any](s *snapshot, collection string) []T {
	if s.fromLocal(collection) {
		out, _ := store.DecodeAll[T](s.local[collection])
		return out
	}

	docs := s.remote[collection]
	queued, deleted := s.pendingDocs(collection)
	if len(queued) > 0 || len(deleted) > 0 {
		seen := make(map[string]struct{}, len(docs))
		merged := make([]store.Document, 0, len(docs)+len(queued))
		for _, d := range docs {
			key, _ := d[store.KeyField].(string)
			if _, gone := deleted[key]; gone {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, d)
		}
		for _, d := range queued {
			key, _ := d[store.KeyField].(string)
			if _, dup := seen[key]; !dup {
				merged = append(merged, d)
			}
		}
		docs = merged
	}
	out, _ := store.DecodeAll[T](docs)
	return out
}

func dropDeleted(records []models.AuditRecord, deleted map[string]struct{}) []models.AuditRecord {
	if len(deleted) == 0 {
		return records
	}
	out := records[:0:0]
	for _, r := range records {
		if _, gone := deleted[r.ID]; !gone {
			out = append(out, r)
		}
	}
	return out
}

// upsertDoc returns docs with doc stored under key, without mutating docs.
func upsertDoc(docs []store.Document, key string, doc store.Document) []store.Document {
	doc = store.CloneDocument(doc)
	doc[store.KeyField] = key

	out := make([]store.Document, 0, len(docs)+1)
	replaced := false
	for _, d := range docs {
		if id, _ := d[store.KeyField].(string); id == key {
			out = append(out, doc)
			replaced = true
			continue
		}
		out = append(out, d)
	}
	if !replaced {
		out = append(out, doc)
	}
	return out
}

// removeDoc returns docs without the document stored under key.
func removeDoc(docs []store.Document, key string) []store.Document {
	out := make([]store.Document, 0, len(docs))
	for _, d := range docs {
		if id, _ := d[store.KeyField].(string); id != key {
			out = append(out, d)
		}
	}
	return out
}
