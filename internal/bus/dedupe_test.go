package bus

import (
	"fmt"
	"testing"
	"time"
)

func TestDedupeCache_DetectsRedelivery(t *testing.T) {
	d := NewDedupeCache(time.Minute, 100)
	if d.Seen("wamid.A1") {
		t.Fatal("first sighting must not be a duplicate")
	}
	if !d.Seen("wamid.A1") {
		t.Fatal("second sighting must be a duplicate")
	}
	if d.Seen("wamid.A2") {
		t.Fatal("different id must not be a duplicate")
	}
}

func TestDedupeCache_EmptyIDNeverDedupes(t *testing.T) {
	d := NewDedupeCache(time.Minute, 100)
	if d.Seen("") || d.Seen("") {
		t.Fatal("empty ids must pass through")
	}
}

func TestDedupeCache_CapIsEnforced(t *testing.T) {
	d := NewDedupeCache(time.Hour, 10)
	for i := 0; i < 50; i++ {
		d.Seen(fmt.Sprintf("id-%d", i))
	}
	if len(d.seen) > 10 {
		t.Errorf("cache size = %d, want at most 10", len(d.seen))
	}
}
