package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/repository/store"
)

// codeUnauthorized is the server error code for an operation the
// authenticated user is not allowed to run.
const codeUnauthorized = 13

// codeChangeStreamUnsupported is returned by standalone servers, which
// cannot open change streams.
const codeChangeStreamUnsupported = 40573

// defaultPollInterval paces snapshot polling when change streams are
// unavailable.
const defaultPollInterval = 5 * time.Second

// Store implements store.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger

	pollInterval time.Duration
}

var _ store.Store = (*Store)(nil)

// NewStore connects to MongoDB and verifies the connection.
func NewStore(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", classify(err))
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", classify(err))
	}

	return &Store{
		client: client,
		db:     client.Database(dbName),
		logger: logger,

		pollInterval: defaultPollInterval,
	}, nil
}

// FetchAll returns every document of the collection.
func (s *Store) FetchAll(ctx context.Context, collection string) ([]store.Document, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, classify(err))
	}
	defer cursor.Close(ctx)

	var docs []store.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, classify(err))
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return docs, nil
}

// Subscribe pushes the current collection, then pushes a fresh snapshot
// after every change. Changes are read from a change stream, which needs a
// replica set; on a standalone server the collection is polled instead.
func (s *Store) Subscribe(ctx context.Context, collection string, onUpdate func([]store.Document), onError func(error)) (func(), error) {
	initial, err := s.FetchAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := s.db.Collection(collection).Watch(streamCtx, mongo.Pipeline{})
	if err != nil && !changeStreamsUnsupported(err) {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", collection, classify(err))
	}

	if onUpdate != nil {
		onUpdate(initial)
	}

	if err != nil {
		s.logger.Info("change streams unsupported, polling collection",
			zap.String("collection", collection),
			zap.Duration("interval", s.pollInterval))
		go s.poll(streamCtx, collection, onUpdate, onError)
		return cancel, nil
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			s.push(streamCtx, collection, onUpdate, onError)
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			s.logger.Warn("change stream closed", zap.String("collection", collection), zap.Error(err))
			if onError != nil {
				onError(fmt.Errorf("watch %s: %w", collection, classify(err)))
			}
		}
	}()

	return cancel, nil
}

func (s *Store) poll(ctx context.Context, collection string, onUpdate func([]store.Document), onError func(error)) {
	interval := s.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.push(ctx, collection, onUpdate, onError)
		}
	}
}

func (s *Store) push(ctx context.Context, collection string, onUpdate func([]store.Document), onError func(error)) {
	fetchCtx, fetchCancel := context.WithTimeout(ctx, 10*time.Second)
	defer fetchCancel()

	docs, err := s.FetchAll(fetchCtx, collection)
	if err != nil {
		if ctx.Err() == nil && onError != nil {
			onError(err)
		}
		return
	}
	if onUpdate != nil {
		onUpdate(docs)
	}
}

// WriteOne replaces the document stored under key, or sets the given fields
// when opts.Merge is true. Both forms upsert.
func (s *Store) WriteOne(ctx context.Context, collection, key string, doc store.Document, opts store.WriteOptions) error {
	coll := s.db.Collection(collection)
	filter := bson.M{store.KeyField: key}
	body := withoutKey(doc)

	var err error
	if opts.Merge {
		_, err = coll.UpdateOne(ctx, filter, bson.M{"$set": body}, options.Update().SetUpsert(true))
	} else {
		_, err = coll.ReplaceOne(ctx, filter, body, options.Replace().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, key, classify(err))
	}
	return nil
}

// DeleteOne removes the document stored under key.
func (s *Store) DeleteOne(ctx context.Context, collection, key string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{store.KeyField: key}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, classify(err))
	}
	return nil
}

// BatchWrite upserts every document in one ordered bulk write.
func (s *Store) BatchWrite(ctx context.Context, collection string, docs map[string]store.Document) error {
	if len(docs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	models := make([]mongo.WriteModel, 0, len(keys))
	for _, k := range keys {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{store.KeyField: k}).
			SetReplacement(withoutKey(docs[k])).
			SetUpsert(true))
	}

	if _, err := s.db.Collection(collection).BulkWrite(ctx, models); err != nil {
		return fmt.Errorf("batch write %s: %w", collection, classify(err))
	}
	return nil
}

// DeleteAll removes every document of the collection.
func (s *Store) DeleteAll(ctx context.Context, collection string) error {
	if _, err := s.db.Collection(collection).DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("delete all %s: %w", collection, classify(err))
	}
	return nil
}

// Close closes the MongoDB connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func withoutKey(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		if k == store.KeyField {
			continue
		}
		out[k] = v
	}
	return out
}

// classify wraps driver errors with the store error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isUnauthorized(err) {
		return fmt.Errorf("%w: %v", store.ErrPermissionDenied, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func changeStreamsUnsupported(err error) bool {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.HasErrorCode(codeChangeStreamUnsupported)
	}
	return false
}

func isUnauthorized(err error) bool {
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.HasErrorCode(codeUnauthorized)
	}
	return false
}
