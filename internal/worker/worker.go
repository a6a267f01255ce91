// Package worker drives the sync coordinator from change feed messages.
// Messages are sharded by product so changes to one product are applied in
// order, while different products proceed in parallel.
package worker

import (
	"context"
	"hash/fnv"
	"sync"

	"stocksync/internal/core/id"
	domainsync "stocksync/internal/domain/sync"
	"stocksync/internal/infrastructure/feed"
	"stocksync/pkg/logger"
)

// Defaults for shard count and per-shard queue depth.
const (
	DefaultShards    = 4
	DefaultQueueSize = 64
)

// Worker fans feed messages out to per-shard goroutines.
type Worker struct {
	coordinator *domainsync.Coordinator
	log         *logger.Logger

	shards    int
	queueSize int
}

// Option configures a Worker.
type Option func(*Worker)

// WithShards sets the shard count.
func WithShards(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.shards = n
		}
	}
}

// WithQueueSize sets the per-shard queue depth.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// New creates a worker.
func New(coordinator *domainsync.Coordinator, log *logger.Logger, opts ...Option) *Worker {
	w := &Worker{
		coordinator: coordinator,
		log:         log.WithComponent("worker"),
		shards:      DefaultShards,
		queueSize:   DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes messages from in until it is closed or the context is
// cancelled. Blocks until all shards drain.
func (w *Worker) Run(ctx context.Context, in <-chan feed.Message) {
	queues := make([]chan feed.Message, w.shards)
	for i := range queues {
		queues[i] = make(chan feed.Message, w.queueSize)
	}

	var wg sync.WaitGroup
	for i, queue := range queues {
		wg.Add(1)
		go func(shard int, queue <-chan feed.Message) {
			defer wg.Done()
			for msg := range queue {
				w.process(ctx, shard, msg)
			}
		}(i, queue)
	}

	w.log.Infow("worker started", "shards", w.shards, "queue_size", w.queueSize)

dispatch:
	for {
		select {
		case <-ctx.Done():
			break dispatch
		case msg, ok := <-in:
			if !ok {
				break dispatch
			}
			// Blocking send: backpressure propagates to the feed rather
			// than dropping changes.
			select {
			case queues[w.shardFor(msg)] <- msg:
			case <-ctx.Done():
				break dispatch
			}
		}
	}

	for _, queue := range queues {
		close(queue)
	}
	wg.Wait()
	w.log.Infow("worker stopped")
}

// shardFor keys item messages by product so per-product ordering holds.
// Transaction-level messages key by transaction id.
func (w *Worker) shardFor(msg feed.Message) int {
	key := msg.TransactionID
	if msg.Item != nil {
		key = msg.Item.ProductID
	}
	return int(hashID(key) % uint32(w.shards))
}

func hashID(v id.ID) uint32 {
	h := fnv.New32a()
	h.Write(v[:])
	return h.Sum32()
}

// process applies one message. Errors are logged; the ledger makes retries
// by upstream re-delivery safe.
func (w *Worker) process(ctx context.Context, shard int, msg feed.Message) {
	var err error
	switch msg.Kind {
	case feed.KindTransactionCompleted:
		err = w.coordinator.SyncTransaction(ctx, msg.TransactionID)
	case feed.KindItemChanged:
		err = w.coordinator.SyncItem(ctx, msg.Item)
	case feed.KindItemDeleted:
		err = w.coordinator.HandleDeletion(ctx, msg.Item)
	default:
		w.log.Warnw("unknown message kind, dropping", "kind", msg.Kind)
		return
	}
	if err != nil {
		w.log.Errorw("message processing failed",
			"shard", shard,
			"kind", msg.Kind,
			"error", err,
		)
	}
}
