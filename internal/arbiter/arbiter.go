package arbiter

import (
	"fmt"
	"slices"
	"sync"

	"github.com/banshee-data/autodrive/internal/monitoring"
)

// Requester identifies a driver competing for a channel. ID must be stable
// across requests; callbacks may be nil.
type Requester struct {
	ID        string
	OnGranted func()
	OnRevoked func(willReturn bool)
}

func (r Requester) granted() {
	if r.OnGranted != nil {
		r.OnGranted()
	}
}

func (r Requester) revoked(willReturn bool) {
	if r.OnRevoked != nil {
		r.OnRevoked(willReturn)
	}
}

// QueuedRequest is a snapshot of one waiting request.
type QueuedRequest struct {
	ID       string
	Priority Priority
}

// ProtocolViolation is the panic value raised when a holder gives up a
// channel that has nobody to hand it to, meaning the holder obtained it
// outside the request protocol.
type ProtocolViolation struct {
	Channel string
	Holder  string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("arbiter %s: %s gave up control with an empty request queue and no return holder", e.Channel, e.Holder)
}

type allocation struct {
	req      Requester
	priority Priority
}

// Arbiter grants exclusive, revocable access to one actuation channel.
// It never blocks: requests are granted or queued synchronously.
type Arbiter struct {
	channel string

	mu       sync.Mutex
	current  *allocation
	returnTo *allocation
	queue    []allocation
}

// New returns an idle arbiter for the named channel.
func New(channel string) *Arbiter {
	return &Arbiter{channel: channel}
}

// Channel returns the channel name.
func (a *Arbiter) Channel() string {
	return a.channel
}

// RequestControl asks for the channel at priority p and reports whether it
// was granted.
//
// An idle channel, or one already held by r, is granted immediately; a
// re-grant records the new priority. If p preempts the holder, the holder
// is revoked and r granted; with wantsReturn the revoked holder is
// remembered and restored when r gives up. Otherwise r is queued in
// priority order, replacing any earlier queued request with the same ID.
func (a *Arbiter) RequestControl(r Requester, p Priority, wantsReturn bool) bool {
	var callbacks []func()

	a.mu.Lock()
	granted := true
	switch {
	case a.current == nil:
		a.removeQueuedLocked(r.ID)
		a.current = &allocation{req: r, priority: p}
		callbacks = append(callbacks, r.granted)
		a.record(monitoring.ArbiterGrant)

	case a.current.req.ID == r.ID:
		a.current = &allocation{req: r, priority: p}
		callbacks = append(callbacks, r.granted)

	case p.Preempts(a.current.priority):
		prev := *a.current
		a.removeQueuedLocked(r.ID)
		if a.returnTo != nil && a.returnTo.req.ID == r.ID {
			a.returnTo = nil
		}
		if wantsReturn {
			if a.returnTo != nil {
				a.enqueueLocked(*a.returnTo)
			}
			a.returnTo = &prev
		}
		a.current = &allocation{req: r, priority: p}
		callbacks = append(callbacks, func() { prev.req.revoked(wantsReturn) }, r.granted)
		a.record(monitoring.ArbiterPreempt)
		a.record(monitoring.ArbiterGrant)

	default:
		a.removeQueuedLocked(r.ID)
		a.enqueueLocked(allocation{req: r, priority: p})
		a.record(monitoring.ArbiterEnqueue)
		granted = false
	}
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return granted
}

// GiveUpControl releases the channel if id holds it and is a no-op
// otherwise. The remembered return holder is restored first; failing that
// the head of the queue is granted. It panics with *ProtocolViolation when
// neither exists.
func (a *Arbiter) GiveUpControl(id string) {
	var callbacks []func()

	a.mu.Lock()
	if a.current == nil || a.current.req.ID != id {
		a.mu.Unlock()
		return
	}
	released := a.current.req
	callbacks = append(callbacks, func() { released.revoked(false) })
	a.record(monitoring.ArbiterRevoke)

	switch {
	case a.returnTo != nil:
		next := a.returnTo
		a.returnTo = nil
		a.removeQueuedLocked(next.req.ID)
		a.current = next
		callbacks = append(callbacks, next.req.granted)
		a.record(monitoring.ArbiterRestore)

	case len(a.queue) > 0:
		next := a.queue[0]
		a.queue = a.queue[1:]
		a.current = &next
		callbacks = append(callbacks, next.req.granted)
		a.record(monitoring.ArbiterGrant)

	default:
		a.current = nil
		a.mu.Unlock()
		panic(&ProtocolViolation{Channel: a.channel, Holder: id})
	}
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// Withdraw removes id from the waiting queue and the return slot. It
// reports whether anything was removed. The current holder is unaffected.
func (a *Arbiter) Withdraw(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := a.removeQueuedLocked(id)
	if a.returnTo != nil && a.returnTo.req.ID == id {
		a.returnTo = nil
		removed = true
	}
	return removed
}

// Holder returns the current holder and its priority.
func (a *Arbiter) Holder() (id string, p Priority, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return "", 0, false
	}
	return a.current.req.ID, a.current.priority, true
}

// ReturnHolder returns the holder that will be restored on the next give up.
func (a *Arbiter) ReturnHolder() (id string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.returnTo == nil {
		return "", false
	}
	return a.returnTo.req.ID, true
}

// Queue returns a snapshot of the waiting requests, head first.
func (a *Arbiter) Queue() []QueuedRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]QueuedRequest, len(a.queue))
	for i, q := range a.queue {
		out[i] = QueuedRequest{ID: q.req.ID, Priority: q.priority}
	}
	return out
}

// enqueueLocked inserts al ahead of the first entry of strictly lower
// priority, keeping the queue sorted descending and FIFO within a level.
func (a *Arbiter) enqueueLocked(al allocation) {
	i := slices.IndexFunc(a.queue, func(q allocation) bool { return al.priority > q.priority })
	if i < 0 {
		i = len(a.queue)
	}
	a.queue = slices.Insert(a.queue, i, al)
}

func (a *Arbiter) removeQueuedLocked(id string) bool {
	n := len(a.queue)
	a.queue = slices.DeleteFunc(a.queue, func(q allocation) bool { return q.req.ID == id })
	return len(a.queue) != n
}

func (a *Arbiter) record(event string) {
	monitoring.ArbiterEvents.WithLabelValues(a.channel, event).Inc()
}
