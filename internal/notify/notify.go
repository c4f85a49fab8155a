package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/shortlet/internal/domain"
	"go.uber.org/zap"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, payload any, maxRetries int) error
}

const publishAttempts = 3

// Notifier delivers lifecycle events without blocking the caller.
type Notifier struct {
	publisher Publisher
	topic     string
	timeout   time.Duration
	attempts  int
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewNotifier(publisher Publisher, topic string, log *zap.Logger) *Notifier {
	return &Notifier{publisher: publisher, topic: topic, timeout: 5 * time.Second, attempts: publishAttempts, log: log}
}

// Notify publishes in the background. Failures are only logged. The
// caller's context is not reused since it usually ends with the request.
func (n *Notifier) Notify(_ context.Context, event domain.LifecycleEvent) {
	if n == nil || n.publisher == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.publisher.PublishWithRetry(ctx, n.topic, event.Key(), event, n.attempts); err != nil {
			n.log.Warn("notification dropped",
				zap.String("type", string(event.Type)), zap.String("booking_id", event.BookingID), zap.Error(err))
		}
	}()
}

// Close waits up to timeout for in-flight notifications and reports
// whether they all finished.
func (n *Notifier) Close(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
