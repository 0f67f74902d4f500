package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
	"github.com/user/brandwatch/pkg/metrics"
)

const (
	DefaultQueueSize = 256
	DefaultSenders   = 3
	sendTimeout      = 30 * time.Second
)

var ErrNotifierClosed = errors.New("notifier closed")

type delivery struct {
	ctx     context.Context
	listing *entity.Listing
	summary *entity.RunSummary
}

// AsyncNotifier queues notifications for a small pool of senders so callers
// never wait on the network. A full queue drops the message.
type AsyncNotifier struct {
	next   repository.Notifier
	queue  chan delivery
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ repository.Notifier = (*AsyncNotifier)(nil)

// NewAsyncNotifier starts senders goroutines delivering to next.
func NewAsyncNotifier(next repository.Notifier, queueSize, senders int, logger *zap.Logger) *AsyncNotifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if senders <= 0 {
		senders = DefaultSenders
	}
	n := &AsyncNotifier{
		next:   next,
		queue:  make(chan delivery, queueSize),
		logger: logger,
	}
	for i := 0; i < senders; i++ {
		n.wg.Add(1)
		go n.sender()
	}
	return n
}

func (n *AsyncNotifier) Notify(ctx context.Context, l entity.Listing) error {
	return n.enqueue(delivery{ctx: context.WithoutCancel(ctx), listing: &l}, "listing")
}

func (n *AsyncNotifier) Summary(ctx context.Context, s entity.RunSummary) error {
	return n.enqueue(delivery{ctx: context.WithoutCancel(ctx), summary: &s}, "summary")
}

func (n *AsyncNotifier) enqueue(d delivery, kind string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrNotifierClosed
	}
	select {
	case n.queue <- d:
		return nil
	default:
		metrics.NotificationsTotal.WithLabelValues(kind, "dropped").Inc()
		n.logger.Warn("notification queue full, dropping", zap.String("kind", kind))
		return nil
	}
}

func (n *AsyncNotifier) sender() {
	defer n.wg.Done()
	for d := range n.queue {
		n.deliver(d)
	}
}

func (n *AsyncNotifier) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(d.ctx, sendTimeout)
	defer cancel()

	kind := "listing"
	var err error
	if d.summary != nil {
		kind = "summary"
		err = n.next.Summary(ctx, *d.summary)
	} else {
		err = n.next.Notify(ctx, *d.listing)
	}
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
		n.logger.Error("notification failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	metrics.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
}

// Close stops accepting notifications and waits for queued ones to be sent.
func (n *AsyncNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}
