package debounce

import (
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu      sync.Mutex
	batches []Batch
	signal  chan Batch
}

func newCapture() *capture {
	return &capture{signal: make(chan Batch, 16)}
}

func (c *capture) flush(b Batch) {
	c.mu.Lock()
	c.batches = append(c.batches, b)
	c.mu.Unlock()
	c.signal <- b
}

func (c *capture) wait(t *testing.T) Batch {
	t.Helper()
	select {
	case b := <-c.signal:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
		return Batch{}
	}
}

func TestSubmit_CoalescesFragmentsIntoOneBatch(t *testing.T) {
	cap := newCapture()
	c := New(cap.flush, WithWindow(50*time.Millisecond))

	c.Submit("549115555", "quiero una pizza", nil)
	c.Submit("549115555", "grande", nil)
	c.Submit("549115555", "de muzzarella", nil)

	b := cap.wait(t)
	if b.Action != Process {
		t.Fatalf("action = %v, want Process", b.Action)
	}
	if b.Count != 3 {
		t.Errorf("count = %d, want 3", b.Count)
	}
	if b.Text != "quiero una pizza grande de muzzarella" {
		t.Errorf("unexpected coalesced text %q", b.Text)
	}

	cap.mu.Lock()
	n := len(cap.batches)
	cap.mu.Unlock()
	if n != 1 {
		t.Errorf("flushed %d batches, want 1", n)
	}
}

func TestSubmit_BurstIsFlaggedAsSpam(t *testing.T) {
	cap := newCapture()
	c := New(cap.flush, WithWindow(50*time.Millisecond), WithBurstLimit(8))

	for i := 0; i < 10; i++ {
		c.Submit("549115555", "hola", nil)
	}

	b := cap.wait(t)
	if b.Action != Spam {
		t.Fatalf("action = %v, want Spam", b.Action)
	}
	if b.Count != 10 {
		t.Errorf("count = %d, want 10", b.Count)
	}
}

func TestSubmit_DelegatesWhileLocked(t *testing.T) {
	cap := newCapture()
	c := New(cap.flush, WithWindow(20*time.Millisecond))

	c.Submit("k", "primero", nil)
	cap.wait(t)

	// The slot stays locked until Release, so a new fragment is queued.
	if got := c.Submit("k", "segundo", nil); got != Delegated {
		t.Fatalf("outcome = %v, want Delegated", got)
	}
	if !c.Locked("k") {
		t.Fatal("key should still be locked before Release")
	}

	c.Release("k")
	b := cap.wait(t)
	if b.Text != "segundo" || b.Count != 1 {
		t.Errorf("follow-up batch = %+v", b)
	}
}

func TestRelease_IsIdempotentAndSafeForUnknownKeys(t *testing.T) {
	cap := newCapture()
	c := New(cap.flush, WithWindow(20*time.Millisecond))

	c.Release("never-seen")

	c.Submit("k", "hola", nil)
	cap.wait(t)
	c.Release("k")
	c.Release("k")
	if c.Locked("k") {
		t.Fatal("key should be unlocked")
	}

	// The slot must remain usable after a double release.
	c.Submit("k", "de nuevo", nil)
	b := cap.wait(t)
	if b.Text != "de nuevo" {
		t.Errorf("batch text = %q", b.Text)
	}
}

func TestSubmit_AttachmentRidesWithBatch(t *testing.T) {
	cap := newCapture()
	c := New(cap.flush, WithWindow(20*time.Millisecond))

	c.Submit("k", "", &Attachment{Kind: "image", MediaID: "m1"})
	c.Submit("k", "esta foto", &Attachment{Kind: "image", MediaID: "m2"})

	b := cap.wait(t)
	if b.Attachment == nil || b.Attachment.MediaID != "m2" {
		t.Fatalf("attachment = %+v, want latest media m2", b.Attachment)
	}
	if b.Count != 2 {
		t.Errorf("count = %d, want 2", b.Count)
	}
}

func TestCoordinator_IndependentKeys(t *testing.T) {
	cap := newCapture()
	c := New(cap.flush, WithWindow(20*time.Millisecond))

	c.Submit("a", "hola", nil)
	cap.wait(t)
	// Key a is locked; key b must flush normally.
	if got := c.Submit("b", "buenas", nil); got != Buffered {
		t.Fatalf("outcome for independent key = %v, want Buffered", got)
	}
	b := cap.wait(t)
	if b.Key != "b" {
		t.Errorf("flushed key = %q, want b", b.Key)
	}
}
