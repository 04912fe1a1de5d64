// Package counting runs the cycle-count workflow: it keeps the latest
// snapshot of every collection, answers dashboard and form queries from it,
// and persists submissions and status changes, falling back to a local
// store when the primary one refuses or fails.
package counting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/evidence"
	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/reconcile"
)

// Notifier receives workflow events worth telling a supervisor about.
type Notifier interface {
	NotifyDiscrepancy(ctx context.Context, record models.AuditRecord, eval models.EntryEvaluation) error
	NotifyDamage(ctx context.Context, report models.DamageReport) error
}

type noopNotifier struct{}

func (noopNotifier) NotifyDiscrepancy(context.Context, models.AuditRecord, models.EntryEvaluation) error {
	return nil
}

func (noopNotifier) NotifyDamage(context.Context, models.DamageReport) error { return nil }

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	EvidencePolicy    reconcile.EvidencePolicy
	DateOrder         models.DateOrder
	DefaultTeamMember string
	StoreTimeout      time.Duration
	Uploader          evidence.Uploader
	Notifier          Notifier
	Metrics           *Metrics
	Clock             func() time.Time
	NewID             func() string
}

// Service is the counting workflow. It is safe for concurrent use.
type Service struct {
	remote store.Store
	local  store.Store
	opts   Options
	logger *zap.Logger

	state atomic.Pointer[snapshot]

	mu   sync.Mutex
	subs map[string]func()

	// cacheMu serializes cache refreshes with writes queued in the local store.
	cacheMu sync.Mutex
}

// NewService wires the workflow on a primary and a local fallback store.
func NewService(remote, local store.Store, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.EvidencePolicy == "" {
		opts.EvidencePolicy = reconcile.EvidencePhoto
	}
	if opts.DateOrder == "" {
		opts.DateOrder = models.DateOrderYMD
	}
	if opts.DefaultTeamMember == "" {
		opts.DefaultTeamMember = "Auditor"
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.Uploader == nil {
		opts.Uploader = evidence.InlineUploader{}
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	s := &Service{
		remote: remote,
		local:  local,
		opts:   opts,
		logger: logger,
		subs:   make(map[string]func()),
	}
	s.state.Store(newSnapshot())
	return s
}

// Start subscribes to the local cache and the primary store. Collections
// the primary store refuses are served from the cache in restricted mode
// until SyncPending manages to resubscribe. Only unexpected errors fail
// Start.
func (s *Service) Start(ctx context.Context) error {
	localCollections := append([]string{store.CollectionPendingWrites}, store.SyncedCollections...)
	for _, coll := range localCollections {
		coll := coll
		unsubscribe, err := s.local.Subscribe(ctx, coll, func(docs []store.Document) {
			s.onLocalUpdate(coll, docs)
		}, func(err error) {
			s.logger.Warn("local store subscription error", zap.String("collection", coll), zap.Error(err))
		})
		if err != nil {
			return fmt.Errorf("subscribe local %s: %w", coll, err)
		}
		s.addSub("local:"+coll, unsubscribe)
	}

	for _, coll := range store.SyncedCollections {
		if err := s.subscribeRemote(ctx, coll); err != nil {
			if !store.Recoverable(err) {
				return err
			}
			s.logger.Warn("primary store unavailable, serving cached data",
				zap.String("collection", coll), zap.Error(err))
		}
	}
	return nil
}

// Close stops every subscription.
func (s *Service) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]func())
	s.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
}

// View returns the current snapshot view.
func (s *Service) View() View {
	return s.state.Load().view
}

// Restricted reports whether any collection is served from the cache.
func (s *Service) Restricted() bool {
	return s.View().Restricted
}

// TeamMember resolves the acting team member, defaulting when blank.
func (s *Service) TeamMember(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return s.opts.DefaultTeamMember
}

func (s *Service) subscribeRemote(ctx context.Context, coll string) error {
	unsubscribe, err := s.remote.Subscribe(ctx, coll, func(docs []store.Document) {
		s.onRemoteUpdate(coll, docs)
	}, func(err error) {
		s.onRemoteError(coll, err)
	})
	if err != nil {
		s.markFailed(coll, err)
		return fmt.Errorf("subscribe %s: %w", coll, err)
	}
	s.addSub("remote:"+coll, unsubscribe)
	return nil
}

func (s *Service) addSub(name string, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.subs[name]; ok {
		prev()
	}
	s.subs[name] = unsubscribe
}

func (s *Service) dropSub(name string) {
	s.mu.Lock()
	unsubscribe, ok := s.subs[name]
	delete(s.subs, name)
	s.mu.Unlock()
	if ok {
		unsubscribe()
	}
}

// update applies fn to a copy of the current snapshot and publishes it.
// fn may run more than once under contention and must not block.
func (s *Service) update(fn func(next *snapshot)) {
	for {
		current := s.state.Load()
		next := current.clone()
		fn(next)
		next.derive()
		if s.state.CompareAndSwap(current, next) {
			s.opts.Metrics.PendingWrites.Set(float64(next.view.Pending))
			if next.view.Restricted {
				s.opts.Metrics.RestrictedMode.Set(1)
			} else {
				s.opts.Metrics.RestrictedMode.Set(0)
			}
			return
		}
	}
}

func (s *Service) onRemoteUpdate(coll string, docs []store.Document) {
	s.update(func(next *snapshot) {
		next.remote[coll] = docs
		delete(next.failed, coll)
	})
	s.mirror(coll, docs)
}

func (s *Service) onRemoteError(coll string, err error) {
	if store.Recoverable(err) {
		s.logger.Warn("primary store subscription failed, serving cached data",
			zap.String("collection", coll), zap.Error(err))
		s.markFailed(coll, err)
		s.dropSub("remote:" + coll)
		return
	}
	s.logger.Error("primary store subscription error", zap.String("collection", coll), zap.Error(err))
}

func (s *Service) markFailed(coll string, err error) {
	if !store.Recoverable(err) {
		return
	}
	s.update(func(next *snapshot) {
		next.failed[coll] = true
	})
}

func (s *Service) onLocalUpdate(coll string, docs []store.Document) {
	if coll == store.CollectionPendingWrites {
		pending := make(map[string]pendingWrite, len(docs))
		for _, doc := range docs {
			var p pendingWrite
			if err := store.Decode(doc, &p); err != nil {
				s.logger.Warn("skipping unreadable pending write", zap.Error(err))
				continue
			}
			pending[pendingKey(p.Collection, p.Key)] = p
		}
		s.update(func(next *snapshot) { next.pending = pending })
		return
	}
	s.update(func(next *snapshot) { next.local[coll] = docs })
}

// mirror refreshes the cached copy of coll from the remote documents. Keys
// with a queued local write keep their cached state. The queue is read from
// the local store under cacheMu so a write queued concurrently is never
// overwritten or dropped.
func (s *Service) mirror(coll string, docs []store.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	queued, err := s.queuedKeys(ctx, coll)
	if err != nil {
		s.logger.Warn("failed to read local queue", zap.String("collection", coll), zap.Error(err))
		return
	}
	cached, err := s.local.FetchAll(ctx, coll)
	if err != nil {
		s.logger.Warn("failed to read local cache", zap.String("collection", coll), zap.Error(err))
		return
	}

	batch := make(map[string]store.Document, len(docs))
	for _, d := range docs {
		key, _ := d[store.KeyField].(string)
		if key == "" {
			continue
		}
		if _, ok := queued[key]; ok {
			continue
		}
		batch[key] = d
	}

	for _, d := range cached {
		key, _ := d[store.KeyField].(string)
		if _, ok := batch[key]; ok {
			continue
		}
		if _, ok := queued[key]; ok {
			continue
		}
		if err := s.local.DeleteOne(ctx, coll, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to drop stale cached document", zap.String("collection", coll), zap.String("key", key), zap.Error(err))
		}
	}
	if len(batch) == 0 {
		return
	}
	if err := s.local.BatchWrite(ctx, coll, batch); err != nil {
		s.logger.Warn("failed to refresh local cache", zap.String("collection", coll), zap.Error(err))
	}
}

// queuedKeys lists the keys of coll with a write waiting in the local queue.
func (s *Service) queuedKeys(ctx context.Context, coll string) (map[string]struct{}, error) {
	docs, err := s.local.FetchAll(ctx, store.CollectionPendingWrites)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{})
	for _, doc := range docs {
		var p pendingWrite
		if err := store.Decode(doc, &p); err != nil {
			continue
		}
		if p.Collection == coll {
			keys[p.Key] = struct{}{}
		}
	}
	return keys, nil
}

// persist writes doc to the primary store. Recoverable failures queue the
// write in the local store and report savedLocally; other failures are
// returned unchanged.
func (s *Service) persist(ctx context.Context, coll, key string, doc store.Document) (savedLocally bool, err error) {
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	err = s.remote.WriteOne(writeCtx, coll, key, doc, store.WriteOptions{})
	if err == nil {
		s.update(func(next *snapshot) {
			if _, loaded := next.remote[coll]; loaded {
				next.remote[coll] = upsertDoc(next.remote[coll], key, doc)
			}
		})
		return false, nil
	}
	if !store.Recoverable(err) {
		return false, fmt.Errorf("write %s: %w", coll, err)
	}

	s.logger.Warn("primary store write failed, saving locally",
		zap.String("collection", coll), zap.String("key", key), zap.Error(err))
	if err := s.queueLocal(ctx, coll, key, doc, false); err != nil {
		return false, err
	}
	return true, nil
}

// remove deletes a document from the primary store with the same fallback
// rules as persist.
func (s *Service) remove(ctx context.Context, coll, key string) (savedLocally bool, err error) {
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	err = s.remote.DeleteOne(writeCtx, coll, key)
	if err == nil {
		s.update(func(next *snapshot) {
			if docs, loaded := next.remote[coll]; loaded {
				next.remote[coll] = removeDoc(docs, key)
			}
		})
		if err := s.local.DeleteOne(ctx, coll, key); err != nil {
			s.logger.Warn("failed to drop cached document", zap.String("collection", coll), zap.Error(err))
		}
		return false, nil
	}
	if !store.Recoverable(err) {
		return false, fmt.Errorf("delete %s: %w", coll, err)
	}

	s.logger.Warn("primary store delete failed, queueing locally",
		zap.String("collection", coll), zap.String("key", key), zap.Error(err))
	if err := s.queueLocal(ctx, coll, key, nil, true); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) queueLocal(ctx context.Context, coll, key string, doc store.Document, deleteOp bool) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if deleteOp {
		if err := s.local.DeleteOne(ctx, coll, key); err != nil {
			return fmt.Errorf("delete local %s: %w", coll, err)
		}
	} else {
		if err := s.local.WriteOne(ctx, coll, key, doc, store.WriteOptions{}); err != nil {
			return fmt.Errorf("write local %s: %w", coll, err)
		}
	}

	entry, err := store.Encode(pendingWrite{
		Collection: coll,
		Key:        key,
		Delete:     deleteOp,
		QueuedAt:   s.opts.Clock().UTC(),
	})
	if err != nil {
		return err
	}
	if err := s.local.WriteOne(ctx, store.CollectionPendingWrites, pendingKey(coll, key), entry, store.WriteOptions{}); err != nil {
		return fmt.Errorf("queue pending write: %w", err)
	}
	return nil
}
