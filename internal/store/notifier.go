package store

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

const notifyChannelPrefix = "feed:"

// Notifier broadcasts change bumps for scopes over Redis Pub/Sub. A bump
// carries no payload; listeners re-materialize the scope from the store, so
// delivery is naturally coalescing and full-snapshot based.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish announces that the scope's contents changed.
func (n *Notifier) Publish(ctx context.Context, scope Scope) {
	if n.rdb == nil {
		return
	}
	if err := n.rdb.Publish(ctx, notifyChannelPrefix+scope.Key(), "1").Err(); err != nil {
		log.Printf("store: publish bump for %s failed: %v", scope.Key(), err)
	}
}

// Listen subscribes to change bumps for a scope. Bumps are coalesced: a slow
// consumer sees at least one pending signal, not a backlog. The returned
// cancel is synchronous; after it returns the channel no longer receives.
func (n *Notifier) Listen(ctx context.Context, scope Scope) (<-chan struct{}, CancelFunc, error) {
	pubsub := n.rdb.Subscribe(ctx, notifyChannelPrefix+scope.Key())

	// Force the SUBSCRIBE round-trip so a failed setup surfaces here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	bumps := make(chan struct{}, 1)
	stopped := make(chan struct{})

	go func() {
		defer close(bumps)
		ch := pubsub.Channel()
		for {
			select {
			case <-stopped:
				return
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case bumps <- struct{}{}:
				default: // already pending, coalesce
				}
			}
		}
	}()

	var once bool
	cancel := func() {
		if once {
			return
		}
		once = true
		close(stopped)
		if err := pubsub.Close(); err != nil {
			log.Printf("store: closing listener for %s: %v", scope.Key(), err)
		}
		// Drain any bump raced in before close so late reads see a closed,
		// empty channel.
		select {
		case <-bumps:
		default:
		}
	}

	return bumps, cancel, nil
}
