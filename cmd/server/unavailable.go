package main

import (
	"context"

	"github.com/mamadbah2/stockcount/internal/repository/store"
)

// unavailableStore stands in for a primary store that could not be reached at
// startup so the workflow serves from the local cache.
type unavailableStore struct{}

func (unavailableStore) FetchAll(context.Context, string) ([]store.Document, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) Subscribe(context.Context, string, func([]store.Document), func(error)) (func(), error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) WriteOne(context.Context, string, string, store.Document, store.WriteOptions) error {
	return store.ErrUnavailable
}

func (unavailableStore) DeleteOne(context.Context, string, string) error {
	return store.ErrUnavailable
}

func (unavailableStore) BatchWrite(context.Context, string, map[string]store.Document) error {
	return store.ErrUnavailable
}

func (unavailableStore) DeleteAll(context.Context, string) error {
	return store.ErrUnavailable
}
