// Package rediscache keeps the local fallback copy of the collections in
// Redis so that submissions saved while the primary store is unreachable
// survive a restart.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/repository/store"
)

// Store implements store.Store with one hash per collection. Every write
// publishes the collection name on a notification channel.
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore builds a Redis backed store. Keys are namespaced under prefix.
func NewStore(addr, password string, db int, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "stockcount"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Store{client: client, prefix: prefix, logger: logger}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.client.Ping(ctx).Err())
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) hashKey(collection string) string {
	return s.prefix + ":" + collection
}

func (s *Store) channel(collection string) string {
	return s.prefix + ":changes:" + collection
}

// FetchAll reads the whole hash, ordered by key.
func (s *Store) FetchAll(ctx context.Context, collection string) ([]store.Document, error) {
	values, err := s.client.HGetAll(ctx, s.hashKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", collection, classify(err))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	docs := make([]store.Document, 0, len(keys))
	for _, k := range keys {
		var doc store.Document
		if err := bson.Unmarshal([]byte(values[k]), &doc); err != nil {
			s.logger.Warn("skipping unreadable cached document",
				zap.String("collection", collection), zap.String("key", k), zap.Error(err))
			continue
		}
		doc[store.KeyField] = k
		docs = append(docs, doc)
	}
	return docs, nil
}

// Subscribe pushes the current collection and refetches it after every
// change notification.
func (s *Store) Subscribe(ctx context.Context, collection string, onUpdate func([]store.Document), onError func(error)) (func(), error) {
	initial, err := s.FetchAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.client.Subscribe(subCtx, s.channel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, classify(err))
	}

	if onUpdate != nil {
		onUpdate(initial)
	}

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				fetchCtx, fetchCancel := context.WithTimeout(subCtx, 5*time.Second)
				docs, err := s.FetchAll(fetchCtx, collection)
				fetchCancel()
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				if onUpdate != nil {
					onUpdate(docs)
				}
			}
		}
	}()

	return cancel, nil
}

// WriteOne stores doc under key. Merge reads the cached document inside a
// WATCH transaction and overlays the new fields.
func (s *Store) WriteOne(ctx context.Context, collection, key string, doc store.Document, opts store.WriteOptions) error {
	hash := s.hashKey(collection)

	if !opts.Merge {
		payload, err := marshal(doc)
		if err != nil {
			return err
		}
		if err := s.client.HSet(ctx, hash, key, payload).Err(); err != nil {
			return fmt.Errorf("hset %s/%s: %w", collection, key, classify(err))
		}
		return s.publish(ctx, collection)
	}

	txf := func(tx *redis.Tx) error {
		merged := store.Document{}
		current, err := tx.HGet(ctx, hash, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := bson.Unmarshal([]byte(current), &merged); err != nil {
				return fmt.Errorf("decode cached %s/%s: %w", collection, key, err)
			}
		}
		for k, v := range doc {
			merged[k] = v
		}
		payload, err := marshal(merged)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hash, key, payload)
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, hash); err != nil {
		return fmt.Errorf("merge %s/%s: %w", collection, key, classify(err))
	}
	return s.publish(ctx, collection)
}

// DeleteOne removes key from the collection hash.
func (s *Store) DeleteOne(ctx context.Context, collection, key string) error {
	if err := s.client.HDel(ctx, s.hashKey(collection), key).Err(); err != nil {
		return fmt.Errorf("hdel %s/%s: %w", collection, key, classify(err))
	}
	return s.publish(ctx, collection)
}

// BatchWrite stores every document in one HSET.
func (s *Store) BatchWrite(ctx context.Context, collection string, docs map[string]store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	values := make(map[string]interface{}, len(docs))
	for k, doc := range docs {
		payload, err := marshal(doc)
		if err != nil {
			return err
		}
		values[k] = payload
	}

	if err := s.client.HSet(ctx, s.hashKey(collection), values).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", collection, classify(err))
	}
	return s.publish(ctx, collection)
}

// DeleteAll drops the collection hash.
func (s *Store) DeleteAll(ctx context.Context, collection string) error {
	if err := s.client.Del(ctx, s.hashKey(collection)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", collection, classify(err))
	}
	return s.publish(ctx, collection)
}

func (s *Store) publish(ctx context.Context, collection string) error {
	if err := s.client.Publish(ctx, s.channel(collection), collection).Err(); err != nil {
		s.logger.Warn("change notification failed", zap.String("collection", collection), zap.Error(err))
	}
	return nil
}

func marshal(doc store.Document) ([]byte, error) {
	body := make(store.Document, len(doc))
	for k, v := range doc {
		if k == store.KeyField {
			continue
		}
		body[k] = v
	}
	payload, err := bson.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode cached document: %w", err)
	}
	return payload, nil
}

// classify maps Redis failures onto the store error taxonomy. ACL
// rejections are permission errors; everything else means the cache could
// not be used.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "NOPERM") || strings.HasPrefix(err.Error(), "NOAUTH") || strings.HasPrefix(err.Error(), "WRONGPASS") {
		return fmt.Errorf("%w: %v", store.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
