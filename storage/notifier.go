package storage

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Notifier fans out change notifications over a redis pub/sub channel.
// Every successful write publishes the changed record id; watchers only
// treat messages as a signal to re-query, so payload contents never carry
// state.
type Notifier struct {
	rc      *redis.Client
	channel string
}

// NewNotifier creates a Notifier publishing on the given channel.
func NewNotifier(rc *redis.Client, channel string) *Notifier {
	return &Notifier{rc: rc, channel: channel}
}

// Publish announces a change to all subscribers. Failures are logged, not
// returned: the write itself already succeeded and is not rolled back.
func (n *Notifier) Publish(ctx context.Context, id string) {
	if err := n.rc.Publish(ctx, n.channel, id).Err(); err != nil {
		log.Errorf("publish update for %s to %s: %v", id, n.channel, err)
	}
}

// Subscribe returns a coalesced tick channel that fires after every
// published change, and a stop function releasing the subscription. Ticks
// arriving while the consumer is busy collapse into one. The tick channel
// is closed when the subscription ends.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan struct{}, func()) {
	sub := n.rc.Subscribe(ctx, n.channel)
	ticks := make(chan struct{}, 1)
	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	go func() {
		defer close(ticks)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					select {
					case <-done:
					default:
						log.Errorf("updates subscription on %s closed", n.channel)
					}
					return
				}
				select {
				case ticks <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ticks, stop
}
