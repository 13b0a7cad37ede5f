package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ReadMarker is the one-shot backend call that acknowledges viewed messages.
type ReadMarker interface {
	MarkRead(ctx context.Context, roomID string) error
}

// ReadReceiptDispatcher signals the backend which messages have been observed,
// exactly once per batch of newly visible messages. It never blocks rendering:
// the call is fire-and-forget and a failure is logged, not retried.
type ReadReceiptDispatcher struct {
	marker ReadMarker
	logger *slog.Logger

	mu       sync.Mutex
	roomID   string
	lastSeen int
}

func NewReadReceiptDispatcher(marker ReadMarker, logger *slog.Logger) *ReadReceiptDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadReceiptDispatcher{marker: marker, logger: logger}
}

// Observe reports the currently visible message count for a room. A dispatch
// fires only when the history fetch is complete, the set is non-empty and it
// actually grew since the last dispatch, so re-renders of the same set never
// duplicate the call.
func (d *ReadReceiptDispatcher) Observe(ctx context.Context, roomID string, visible int, historyLoaded bool) {
	if !historyLoaded || visible == 0 {
		return
	}

	d.mu.Lock()
	if roomID != d.roomID {
		d.roomID = roomID
		d.lastSeen = 0
	}
	if visible <= d.lastSeen {
		d.mu.Unlock()
		return
	}
	d.lastSeen = visible
	d.mu.Unlock()

	go func() {
		if err := d.marker.MarkRead(ctx, roomID); err != nil {
			d.logger.Error(fmt.Sprintf("mark read %s: %v", roomID, err))
		}
	}()
}

// Reset clears dispatch tracking, so the next visible batch after a fresh
// history fetch fires again.
func (d *ReadReceiptDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roomID = ""
	d.lastSeen = 0
}
