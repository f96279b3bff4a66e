// Package debounce coalesces rapid message fragments from the same sender
// into a single batch and serializes processing per sender.
//
// WhatsApp users often split one thought across several messages sent within
// a couple of seconds. Submitting each fragment to the coordinator restarts a
// short timer; when the timer expires the accumulated fragments are flushed
// as one batch to the configured callback. While a batch is being processed
// the sender's slot stays locked, and fragments arriving in the meantime are
// buffered for a follow-up flush after Release.
package debounce

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Outcome reports what the coordinator did with a submitted fragment.
type Outcome int

const (
	// Buffered means the fragment was added to the sender's pending batch
	// and the flush timer was (re)started.
	Buffered Outcome = iota
	// Delegated means the sender's slot is locked by an in-flight batch;
	// the fragment was queued and will ride along with the next flush.
	Delegated
)

// Action tells the flush callback how to treat a batch.
type Action int

const (
	// Process means the batch is a normal coalesced message.
	Process Action = iota
	// Spam means the sender exceeded the burst limit inside one debounce
	// window; the batch should be dropped or answered with a slow-down
	// notice instead of reaching the agent.
	Spam
)

// Attachment carries non-text payload metadata through the debounce window.
// Only the most recent attachment in a window survives coalescing.
type Attachment struct {
	Kind     string // "image", "audio", "location"
	MediaID  string
	MimeType string
	Caption  string
}

// Batch is the coalesced result handed to the flush callback.
type Batch struct {
	Key        string
	Action     Action
	Text       string
	Attachment *Attachment
	Count      int // fragments coalesced into this batch
}

// FlushFunc receives each expired batch. It runs on the timer goroutine;
// the coordinator holds the sender's lock for the duration of the call
// plus however long the caller defers Release.
type FlushFunc func(Batch)

type entry struct {
	mu        sync.Mutex
	timer     *time.Timer
	fragments []string
	attach    *Attachment
	count     int
	locked    bool // a flushed batch for this key is still in flight
	pending   bool // fragments arrived while locked; reflush after Release
}

// Coordinator implements per-sender debounce plus a processing lock.
// The zero value is not usable; construct with New.
type Coordinator struct {
	window     time.Duration
	burstLimit int
	flush      FlushFunc
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithWindow sets the quiet period after the last fragment before a flush.
func WithWindow(d time.Duration) Option {
	return func(c *Coordinator) { c.window = d }
}

// WithBurstLimit sets the fragment count above which a window is flagged
// as spam instead of being processed.
func WithBurstLimit(n int) Option {
	return func(c *Coordinator) { c.burstLimit = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator that invokes fn for every expired batch.
func New(fn FlushFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		window:     3 * time.Second,
		burstLimit: 8,
		flush:      fn,
		logger:     slog.Default(),
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit adds a text fragment for key. An empty attachment-only fragment is
// legal: pass text "" and a non-nil attachment.
func (c *Coordinator) Submit(key, text string, attach *Attachment) Outcome {
	e := c.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if text != "" {
		e.fragments = append(e.fragments, text)
	}
	if attach != nil {
		e.attach = attach
	}
	e.count++

	if e.locked {
		e.pending = true
		c.logger.Debug("fragment delegated to in-flight batch", "key", key, "pending", e.count)
		return Delegated
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(c.window, func() { c.expire(key) })
	return Buffered
}

// Release unlocks key after a flushed batch has been fully handled. If
// fragments arrived while the batch was in flight, a new debounce window
// starts for them immediately. Releasing an unknown or unlocked key is a
// no-op, so callers can defer Release unconditionally.
func (c *Coordinator) Release(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.locked {
		return
	}
	e.locked = false
	if e.pending {
		e.pending = false
		e.timer = time.AfterFunc(c.window, func() { c.expire(key) })
	}
}

// Locked reports whether a batch for key is currently in flight.
func (c *Coordinator) Locked(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

func (c *Coordinator) entry(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func (c *Coordinator) expire(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.locked || e.count == 0 {
		// A Submit raced the timer and restarted it, or Release already
		// rescheduled. Either way this firing is stale.
		e.mu.Unlock()
		return
	}
	// Fragments coalesce into one utterance, so they read as a single
	// sentence ("quiero pizza" + "dos gaseosas").
	batch := Batch{
		Key:        key,
		Text:       strings.Join(e.fragments, " "),
		Attachment: e.attach,
		Count:      e.count,
	}
	if e.count > c.burstLimit {
		batch.Action = Spam
	}
	e.fragments = nil
	e.attach = nil
	e.count = 0
	e.locked = true
	e.timer = nil
	e.mu.Unlock()

	if batch.Action == Spam {
		c.logger.Warn("burst limit exceeded, flagging batch as spam", "key", key, "count", batch.Count)
	}
	c.flush(batch)
}
