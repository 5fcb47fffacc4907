// Package response implements the kernel's one-shot request/response
// correlation table: registering a reply binding for a message id,
// letting a responder discover where to reply, and settling the
// waiting caller either with the response or a timeout.
//
// The binding table is backed by a min-heap of (expiry, messageId) so
// timeout scheduling is O(log n); delivery clears the map entry
// eagerly but only lazily evicts the corresponding heap slot, checked
// against the heap's current top (see DESIGN.md).
package response

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/message"
	"github.com/lesfleursdelanuitdev/mycelia-kernel/internal/kernel/principal"
)

// ErrResponseTimeout is delivered to a waiting caller when its one-shot
// reply does not arrive before the registered timeout.
var ErrResponseTimeout = fmt.Errorf("response: timed out waiting for reply")

// ErrUnknownBinding is returned by DeliverResponse for a message id with
// no (or no longer any) registered binding.
var ErrUnknownBinding = fmt.Errorf("response: no reply binding for message id")

// Outcome is what a waiting caller eventually receives.
type Outcome struct {
	Response *message.Message
	Err      error
}

// Binding is the kernel's internal messageId -> reply-target record.
type Binding struct {
	MessageID    string
	ReplyChannel string
	Requester    principal.PKR
	Expires      time.Time

	once   sync.Once
	result chan Outcome
}

// Wait blocks until the binding is settled by DeliverResponse or by the
// manager's timeout reaper, whichever happens first.
func (b *Binding) Wait() (*message.Message, error) {
	outcome := <-b.result
	return outcome.Response, outcome.Err
}

func (b *Binding) settle(outcome Outcome) {
	b.once.Do(func() {
		b.result <- outcome
	})
}

// heapItem is one (expiry, messageId) entry. A heap entry may outlive
// its Binding's removal from Manager.bindings (already delivered); Reap
// treats that as a stale tombstone and skips it.
type heapItem struct {
	expires time.Time
	id      string
}

type timeoutHeap []heapItem

func (h timeoutHeap) Len() int            { return len(h) }
func (h timeoutHeap) Less(i, j int) bool  { return h[i].expires.Before(h[j].expires) }
func (h timeoutHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeoutHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Manager owns the reply-binding table. Mutated only by the kernel;
// reads (GetReplyTo) are safe for any caller.
type Manager struct {
	mu       sync.Mutex
	bindings map[string]*Binding
	pending  timeoutHeap
	now      func() time.Time
}

// NewManager constructs an empty response manager.
func NewManager() *Manager {
	return &Manager{bindings: make(map[string]*Binding), now: time.Now}
}

// RegisterReply stores a binding for messageID with the given timeout.
// A timeout of 0 means the binding is already expired the moment
// anything next checks the heap (spec §8 boundary case).
func (m *Manager) RegisterReply(messageID, replyChannel string, requester principal.PKR, timeout time.Duration) *Binding {
	b := &Binding{
		MessageID:    messageID,
		ReplyChannel: replyChannel,
		Requester:    requester,
		Expires:      m.now().Add(timeout),
		result:       make(chan Outcome, 1),
	}

	m.mu.Lock()
	m.bindings[messageID] = b
	heap.Push(&m.pending, heapItem{expires: b.Expires, id: messageID})
	m.mu.Unlock()

	return b
}

// GetReplyTo returns the reply channel and requester registered for a
// message id, used by a responder to discover where to send its reply.
func (m *Manager) GetReplyTo(messageID string) (replyChannel string, requester principal.PKR, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[messageID]
	if !ok {
		return "", principal.PKR{}, false
	}
	return b.ReplyChannel, b.Requester, true
}

// DeliverResponse matches a response message by meta.inReplyTo, settles
// the waiting one-shot with it, and clears the binding. Reply-binding
// uniqueness: settling is idempotent (Binding.settle uses sync.Once),
// and a duplicate/late delivery after the binding was cleared settles
// nothing and returns ErrUnknownBinding.
func (m *Manager) DeliverResponse(resp *message.Message) error {
	inReplyTo := resp.Meta.String(message.MetaInReplyTo)
	if inReplyTo == "" {
		return fmt.Errorf("response: message has no %s meta field", message.MetaInReplyTo)
	}

	m.mu.Lock()
	b, ok := m.bindings[inReplyTo]
	if ok {
		delete(m.bindings, inReplyTo)
	}
	m.mu.Unlock()

	if !ok {
		return ErrUnknownBinding
	}
	b.settle(Outcome{Response: resp})
	return nil
}

// Reap settles every binding whose expiry has passed with
// ErrResponseTimeout and removes it from the table. Intended to be
// driven periodically (e.g. once per global scheduler tick).
func (m *Manager) Reap(now time.Time) int {
	reaped := 0
	for {
		m.mu.Lock()
		if m.pending.Len() == 0 {
			m.mu.Unlock()
			break
		}
		top := m.pending[0]
		if top.expires.After(now) {
			m.mu.Unlock()
			break
		}
		heap.Pop(&m.pending)

		b, ok := m.bindings[top.id]
		if !ok || b.Expires != top.expires {
			// Stale tombstone: already delivered, or superseded by a
			// re-registration under the same id. Skip without counting.
			m.mu.Unlock()
			continue
		}
		delete(m.bindings, top.id)
		m.mu.Unlock()

		b.settle(Outcome{Err: ErrResponseTimeout})
		reaped++
	}
	return reaped
}

// Pending reports how many bindings are currently outstanding.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bindings)
}
