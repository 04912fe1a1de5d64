package counting

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/repository/store"
)

// SyncReport summarizes one SyncPending run.
type SyncReport struct {
	Synced  int `json:"synced"`
	Dropped int `json:"dropped"`
	Pending int `json:"pending"`
}

// SyncPending replays queued local writes against the primary store, oldest
// first, and resubscribes collections that were served from the cache. It
// stops at the first recoverable failure; writes the primary store rejects
// outright are dropped from the queue and logged.
func (s *Service) SyncPending(ctx context.Context) (SyncReport, error) {
	s.resubscribe(ctx)

	current := s.state.Load()
	queue := make([]pendingWrite, 0, len(current.pending))
	for _, p := range current.pending {
		queue = append(queue, p)
	}
	sort.Slice(queue, func(i, j int) bool {
		if !queue[i].QueuedAt.Equal(queue[j].QueuedAt) {
			return queue[i].QueuedAt.Before(queue[j].QueuedAt)
		}
		return pendingKey(queue[i].Collection, queue[i].Key) < pendingKey(queue[j].Collection, queue[j].Key)
	})

	var report SyncReport
	var hardErrs []error
	for i, p := range queue {
		err := s.replay(ctx, current, p)
		if err != nil && store.Recoverable(err) {
			report.Pending = len(queue) - i
			s.opts.Metrics.Synced.WithLabelValues("deferred").Add(float64(report.Pending))
			s.logger.Info("primary store still unavailable, sync deferred",
				zap.Int("pending", report.Pending), zap.Error(err))
			return report, err
		}
		if err != nil {
			hardErrs = append(hardErrs, fmt.Errorf("%s/%s: %w", p.Collection, p.Key, err))
			s.logger.Error("dropping queued write rejected by primary store",
				zap.String("collection", p.Collection), zap.String("key", p.Key), zap.Error(err))
			report.Dropped++
			s.opts.Metrics.Synced.WithLabelValues("dropped").Inc()
		} else {
			report.Synced++
			s.opts.Metrics.Synced.WithLabelValues("synced").Inc()
		}

		if err := s.local.DeleteOne(ctx, store.CollectionPendingWrites, pendingKey(p.Collection, p.Key)); err != nil {
			return report, fmt.Errorf("dequeue %s/%s: %w", p.Collection, p.Key, err)
		}
	}

	if report.Synced > 0 {
		s.logger.Info("queued writes synced", zap.Int("synced", report.Synced), zap.Int("dropped", report.Dropped))
	}
	return report, errors.Join(hardErrs...)
}

func (s *Service) replay(ctx context.Context, snap *snapshot, p pendingWrite) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if p.Delete {
		return s.remote.DeleteOne(writeCtx, p.Collection, p.Key)
	}

	doc, ok := snap.findLocal(p.Collection, p.Key)
	if !ok {
		return fmt.Errorf("queued document missing from local store: %w", store.ErrNotFound)
	}
	if err := s.remote.WriteOne(writeCtx, p.Collection, p.Key, doc, store.WriteOptions{}); err != nil {
		return err
	}
	s.update(func(next *snapshot) {
		if docs, loaded := next.remote[p.Collection]; loaded {
			next.remote[p.Collection] = upsertDoc(docs, p.Key, doc)
		}
	})
	return nil
}

// resubscribe retries the primary subscriptions that failed.
func (s *Service) resubscribe(ctx context.Context) {
	current := s.state.Load()
	for _, coll := range store.SyncedCollections {
		if !current.failed[coll] {
			continue
		}
		subCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		err := s.subscribeRemote(subCtx, coll)
		cancel()
		if err != nil {
			s.logger.Debug("resubscribe failed", zap.String("collection", coll), zap.Error(err))
			continue
		}
		s.logger.Info("primary store subscription restored", zap.String("collection", coll))
	}
}
