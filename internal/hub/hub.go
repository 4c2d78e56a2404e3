// Package hub fans room-scoped events out to the connections in the room.
package hub

import (
	"context"
	"log"
	"sync"

	"talkomatic/pkg/interfaces"
	"talkomatic/pkg/types"
)

// Hub is the single delivery point for outbound events. Publishers enqueue
// without blocking; one goroutine drains the queue and delivers to every
// sender in the target room, preserving publish order per room.
type Hub struct {
	eventChannel    chan types.Event
	shutdownChannel chan struct{}

	directory interfaces.Directory

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub delivering through the given connection directory.
func NewHub(directory interfaces.Directory) *Hub {
	return &Hub{
		eventChannel:    make(chan types.Event, 1000),
		shutdownChannel: make(chan struct{}),
		directory:       directory,
	}
}

// Start begins the fanout loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting event hub...")
	go h.run(ctx)
	return nil
}

// Stop shuts the fanout loop down. Events still queued are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping event hub...")
	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	return nil
}

// Publish enqueues an event for delivery to its room. Never blocks; a full
// queue is an error the caller can only log.
func (h *Hub) Publish(event types.Event) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.eventChannel <- event:
		return nil
	default:
		return ErrEventChannelFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub processing stopped")

	for {
		select {
		case event := <-h.eventChannel:
			h.deliver(event)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

// deliver sends the event to every connection in the room except the excluded
// user. Individual send failures are logged, not propagated; a dead connection
// is torn down by its own read loop.
func (h *Hub) deliver(event types.Event) {
	for _, sender := range h.directory.RoomSenders(event.RoomID) {
		if event.Exclude != "" && sender.UserID() == event.Exclude {
			continue
		}
		if err := sender.Send(event.Name, event.Payload); err != nil {
			log.Printf("Failed to deliver %q to user %s: %v", event.Name, sender.UserID(), err)
		}
	}
}
