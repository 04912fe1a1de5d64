package counting

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/locations"
)

// ImportMode selects how an import combines with existing rows.
type ImportMode string

const (
	// ImportReplace deletes every existing row first.
	ImportReplace ImportMode = "replace"
	// ImportMerge upserts rows by key and keeps the others.
	ImportMerge ImportMode = "merge"
)

// ParseImportMode validates a requested mode. Blank means replace.
func ParseImportMode(raw string) (ImportMode, error) {
	switch ImportMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ImportReplace:
		return ImportReplace, nil
	case ImportMerge:
		return ImportMerge, nil
	default:
		return "", invalid("mode", fmt.Sprintf("unknown import mode %q", raw))
	}
}

// ImportCatalog stores master items keyed by SKU, batch and expiry. Rows
// repeating a key collapse into the last one. It returns the number of
// distinct rows written. Imports never fall back to the local store.
func (s *Service) ImportCatalog(ctx context.Context, items []models.MasterItem, mode ImportMode) (int, error) {
	docs := make(map[string]store.Document, len(items))
	for _, item := range items {
		item.SKU = strings.TrimSpace(item.SKU)
		if item.SKU == "" {
			continue
		}
		if strings.TrimSpace(item.Unit) == "" {
			item.Unit = models.DefaultUnit
		}
		doc, err := store.Encode(item)
		if err != nil {
			return 0, err
		}
		docs[item.Key()] = doc
	}

	if err := s.replaceCollection(ctx, store.CollectionMasterItems, docs, mode); err != nil {
		return 0, err
	}
	s.logger.Info("catalog imported", zap.Int("rows", len(docs)), zap.String("mode", string(mode)))
	return len(docs), nil
}

// ImportLocations stores the declared locations keyed by normalized name.
func (s *Service) ImportLocations(ctx context.Context, locs []models.MasterLocation, mode ImportMode) (int, error) {
	docs := make(map[string]store.Document, len(locs))
	for _, loc := range locs {
		key := locations.Key(loc.Name)
		if key == "" {
			continue
		}
		loc.Name = strings.Join(strings.Fields(loc.Name), " ")
		if strings.TrimSpace(loc.ID) == "" {
			loc.ID = loc.Name
		}
		doc, err := store.Encode(loc)
		if err != nil {
			return 0, err
		}
		docs[key] = doc
	}

	if err := s.replaceCollection(ctx, store.CollectionMasterLocations, docs, mode); err != nil {
		return 0, err
	}
	s.logger.Info("locations imported", zap.Int("rows", len(docs)), zap.String("mode", string(mode)))
	return len(docs), nil
}

// ResetCatalog deletes every master item.
func (s *Service) ResetCatalog(ctx context.Context) error {
	return s.clearCollection(ctx, store.CollectionMasterItems)
}

// ResetLocationStates returns every location to pending.
func (s *Service) ResetLocationStates(ctx context.Context) error {
	return s.clearCollection(ctx, store.CollectionLocationStates)
}

func (s *Service) replaceCollection(ctx context.Context, coll string, docs map[string]store.Document, mode ImportMode) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if mode != ImportMerge {
		if err := s.remote.DeleteAll(writeCtx, coll); err != nil {
			return fmt.Errorf("clear %s: %w", coll, err)
		}
	}
	if err := s.remote.BatchWrite(writeCtx, coll, docs); err != nil {
		return fmt.Errorf("import %s: %w", coll, err)
	}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.update(func(next *snapshot) {
		current, loaded := next.remote[coll]
		if !loaded {
			return
		}
		if mode != ImportMerge {
			current = nil
		}
		for _, k := range keys {
			current = upsertDoc(current, k, docs[k])
		}
		next.remote[coll] = current
	})
	return nil
}

func (s *Service) clearCollection(ctx context.Context, coll string) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if err := s.remote.DeleteAll(writeCtx, coll); err != nil {
		return fmt.Errorf("reset %s: %w", coll, err)
	}
	s.update(func(next *snapshot) {
		if _, loaded := next.remote[coll]; loaded {
			next.remote[coll] = []store.Document{}
		}
	})
	s.logger.Info("collection reset", zap.String("collection", coll))
	return nil
}
