package session

import (
	"context"
	"sync"

	"github.com/atelierdesign/site-chat/internal/model/chat"
	"github.com/atelierdesign/site-chat/internal/transport"
)

type outboundKind int

const (
	outboundJoin outboundKind = iota
	outboundMessage
)

type outbound struct {
	kind  outboundKind
	id    string
	frame chat.Frame
}

// outbox is an unbounded FIFO drained by a single writer per connection, so
// frames leave in the order they were queued and queuing never blocks the
// session goroutine.
type outbox struct {
	mu     sync.Mutex
	items  []outbound
	signal chan struct{}
}

func newOutbox() *outbox {
	return &outbox{signal: make(chan struct{}, 1)}
}

func (o *outbox) push(item outbound) {
	o.mu.Lock()
	o.items = append(o.items, item)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox) take() []outbound {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items
	o.items = nil
	return items
}

// run writes queued frames to conn until ctx ends, reporting each outcome.
func (o *outbox) run(ctx context.Context, conn transport.Conn, report func(outbound, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.signal:
		}

		for _, item := range o.take() {
			if ctx.Err() != nil {
				return
			}
			report(item, conn.Send(ctx, item.frame))
		}
	}
}
