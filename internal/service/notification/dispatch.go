package notification

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"civic-automation/internal/domain"
)

// Dispatch tracks the channel tasks started by one Notify call.
type Dispatch struct {
	Notification *domain.Notification
	Deliveries   []domain.UserNotification

	pending   atomic.Int64
	sealed    atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
	abandoned <-chan struct{}

	mu      sync.Mutex
	results map[uuid.UUID]map[domain.Channel]domain.ChannelResult
}

// newDispatch ties the dispatch to the engine's abandoned channel, which is
// closed when shutdown gives up on queued tasks.
func newDispatch(notif *domain.Notification, abandoned <-chan struct{}) *Dispatch {
	return &Dispatch{
		Notification: notif,
		done:         make(chan struct{}),
		abandoned:    abandoned,
		results:      make(map[uuid.UUID]map[domain.Channel]domain.ChannelResult),
	}
}

func (d *Dispatch) record(userNotificationID uuid.UUID, channel domain.Channel, result domain.ChannelResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byChannel, ok := d.results[userNotificationID]
	if !ok {
		byChannel = make(map[domain.Channel]domain.ChannelResult, 3)
		d.results[userNotificationID] = byChannel
	}
	byChannel[channel] = result
}

func (d *Dispatch) add() {
	d.pending.Add(1)
}

func (d *Dispatch) release() {
	if d.pending.Add(-1) == 0 && d.sealed.Load() {
		d.complete()
	}
}

// seal marks the end of task submission. No task may be added afterwards.
func (d *Dispatch) seal() {
	d.sealed.Store(true)
	if d.pending.Load() == 0 {
		d.complete()
	}
}

func (d *Dispatch) complete() {
	d.doneOnce.Do(func() { close(d.done) })
}

// Done is closed once every channel task has finished.
func (d *Dispatch) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until every channel task has finished. It returns ErrClosed
// when the engine shut down before running them.
func (d *Dispatch) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-d.abandoned:
		select {
		case <-d.done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns a snapshot of channel outcomes keyed by delivery row id.
func (d *Dispatch) Results() map[uuid.UUID]map[domain.Channel]domain.ChannelResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uuid.UUID]map[domain.Channel]domain.ChannelResult, len(d.results))
	for id, byChannel := range d.results {
		cp := make(map[domain.Channel]domain.ChannelResult, len(byChannel))
		for ch, r := range byChannel {
			cp[ch] = r
		}
		out[id] = cp
	}
	return out
}

// Summary counts outcomes per result kind.
func (d *Dispatch) Summary() map[domain.ResultKind]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[domain.ResultKind]int)
	for _, byChannel := range d.results {
		for _, r := range byChannel {
			out[r.Kind]++
		}
	}
	return out
}
