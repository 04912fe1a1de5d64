// Package store defines the document-store contract the counting workflow
// persists through.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names.
const (
	CollectionMasterItems     = "master_items"
	CollectionMasterLocations = "master_locations"
	CollectionAuditLogs       = "audit_logs"
	CollectionLocationStates  = "location_states"
	CollectionDamageReports   = "damage_reports"

	// CollectionPendingWrites only exists in the local fallback store. It
	// queues writes that still have to reach the primary store.
	CollectionPendingWrites = "pending_writes"
)

// SyncedCollections are the collections mirrored from the primary store.
var SyncedCollections = []string{
	CollectionMasterItems,
	CollectionMasterLocations,
	CollectionAuditLogs,
	CollectionLocationStates,
	CollectionDamageReports,
}

// KeyField is the document field holding the record key.
const KeyField = "_id"

var (
	// ErrPermissionDenied means the store refused access. Callers fall back
	// to the local cache and enter restricted mode.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnavailable means the store could not be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned when a keyed document does not exist.
	ErrNotFound = errors.New("document not found")
)

// Recoverable reports whether err should trigger the local fallback rather
// than fail the operation.
func Recoverable(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnavailable)
}

// Document is a schemaless record.
type Document = bson.M

// WriteOptions controls WriteOne.
type WriteOptions struct {
	// Merge sets only the given fields on an existing document instead of
	// replacing it.
	Merge bool
}

// Store is a collection-oriented document store. Subscribe pushes the full
// collection on every change; onError receives ErrPermissionDenied or
// ErrUnavailable wrapped errors where applicable. The returned function
// stops the subscription.
type Store interface {
	FetchAll(ctx context.Context, collection string) ([]Document, error)
	Subscribe(ctx context.Context, collection string, onUpdate func([]Document), onError func(error)) (func(), error)
	WriteOne(ctx context.Context, collection, key string, doc Document, opts WriteOptions) error
	DeleteOne(ctx context.Context, collection, key string) error
	BatchWrite(ctx context.Context, collection string, docs map[string]Document) error
	DeleteAll(ctx context.Context, collection string) error
}

// Encode converts a bson-tagged value into a Document.
func Encode(v interface{}) (Document, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	var doc Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a Document into a bson-tagged value.
func Decode(doc Document, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DecodeAll decodes every document, skipping the ones that do not fit T.
// The number of skipped documents is returned alongside.
func DecodeAll[T any](docs []Document) ([]T, int) {
	out := make([]T, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		var v T
		if err := Decode(doc, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped
}

// CloneDocument returns a deep copy of doc.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		out := make(Document, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	var out Document
	if err := bson.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}
