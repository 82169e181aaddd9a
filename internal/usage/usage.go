package usage

import (
	"sync"
	"time"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

const maxRetries = 3

// Event is one billable request, queued by the handlers and settled
// asynchronously by the accountant.
type Event struct {
	RequestID    string         `json:"request_id"`
	KeyHash      string         `json:"key_hash"`
	Model        string         `json:"model"`
	Usage        provider.Usage `json:"usage"`
	Images       int64          `json:"images,omitempty"`
	AudioMinutes int64          `json:"audio_minutes,omitempty"`
	VideoSeconds int64          `json:"video_seconds,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	QueuedAt     time.Time      `json:"queued_at"`
	Retries      int            `json:"retries,omitempty"`
}

// Queue accepts events without blocking the request path.
type Queue interface {
	Enqueue(event *Event)
	// Drain removes and returns a snapshot of everything queued.
	Drain() []*Event
}

// MemoryQueue is the in-process event queue. Enqueue never blocks and
// never fails; the accountant drains a full snapshot each tick so
// events queued mid-drain wait for the next one.
type MemoryQueue struct {
	mu     sync.Mutex
	events []*Event
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(event *Event) {
	if event.QueuedAt.IsZero() {
		event.QueuedAt = time.Now().UTC()
	}
	q.mu.Lock()
	q.events = append(q.events, event)
	q.mu.Unlock()
}

func (q *MemoryQueue) Drain() []*Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}
