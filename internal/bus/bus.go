// Package bus provides the in-process message bus connecting channels to
// the agent runtime: two unbounded FIFO queues (inbound, outbound) and a
// per-channel outbound fan-out dispatcher.
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// OutboundHandler delivers an outbound message to a transport.
type OutboundHandler func(ctx context.Context, msg OutboundMessage) error

// MessageBus routes messages between channels and the agent loop.
// Both queues are FIFO and unbounded; nothing is persisted, so messages
// enqueued but not yet consumed are lost on shutdown.
type MessageBus struct {
	mu       sync.Mutex
	inbound  []InboundMessage
	outbound []OutboundMessage
	inCond   *sync.Cond
	outCond  *sync.Cond

	subMu       sync.RWMutex
	subscribers map[string][]OutboundHandler
}

func New() *MessageBus {
	b := &MessageBus{
		subscribers: make(map[string][]OutboundHandler),
	}
	b.inCond = sync.NewCond(&b.mu)
	b.outCond = sync.NewCond(&b.mu)
	return b
}

// PublishInbound enqueues a message from a channel for the agent loop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.mu.Lock()
	b.inbound = append(b.inbound, msg)
	b.mu.Unlock()
	b.inCond.Signal()
}

// ConsumeInbound blocks until a message is available or ctx is cancelled.
// Returns ok=false on cancellation.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	// Wake the waiter when the context is cancelled so the Wait loop
	// can observe ctx.Err and return.
	stop := context.AfterFunc(ctx, func() { b.inCond.Broadcast() })
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.inbound) == 0 {
		if ctx.Err() != nil {
			return InboundMessage{}, false
		}
		b.inCond.Wait()
	}
	msg := b.inbound[0]
	b.inbound = b.inbound[1:]
	return msg, true
}

// InboundLen reports the number of queued inbound messages.
func (b *MessageBus) InboundLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inbound)
}

// PublishOutbound enqueues a message for delivery to its channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.mu.Lock()
	b.outbound = append(b.outbound, msg)
	b.mu.Unlock()
	b.outCond.Signal()
}

// SubscribeOutbound registers a delivery handler for a channel tag.
// Multiple handlers per channel are allowed; they run in registration order.
func (b *MessageBus) SubscribeOutbound(channel string, handler OutboundHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], handler)
}

// DispatchOutbound pumps the outbound queue until ctx is cancelled.
// Every handler registered for a message's channel is invoked; a failing
// handler is logged and must not prevent its siblings from running.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		msg, ok := b.consumeOutbound(ctx)
		if !ok {
			return
		}
		b.deliver(ctx, msg)
	}
}

func (b *MessageBus) consumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	stop := context.AfterFunc(ctx, func() { b.outCond.Broadcast() })
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.outbound) == 0 {
		if ctx.Err() != nil {
			return OutboundMessage{}, false
		}
		b.outCond.Wait()
	}
	msg := b.outbound[0]
	b.outbound = b.outbound[1:]
	return msg, true
}

func (b *MessageBus) deliver(ctx context.Context, msg OutboundMessage) {
	b.subMu.RLock()
	handlers := b.subscribers[msg.Channel]
	b.subMu.RUnlock()

	if len(handlers) == 0 {
		slog.Warn("no outbound subscriber for channel", "channel", msg.Channel, "chat_id", msg.ChatID)
		return
	}

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("outbound handler panicked", "channel", msg.Channel, "panic", r)
				}
			}()
			if err := h(ctx, msg); err != nil {
				slog.Error("outbound handler failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			}
		}()
	}
}
