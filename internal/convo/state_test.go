package convo

import "testing"

func TestCanTransition_ForwardPath(t *testing.T) {
	path := []State{
		StateIdle, StateBrowsing, StateShopping, StateNeedsAddress,
		StateCheckout, StateOrderPendingCash, StateOrderConfirmed,
		StateOrderCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransition_PickupSkipsAddress(t *testing.T) {
	if !CanTransition(StateShopping, StateCheckout) {
		t.Error("shopping -> checkout (pickup) should be legal")
	}
}

func TestCanTransition_CancelFromAnyNonTerminal(t *testing.T) {
	nonTerminal := []State{
		StateIdle, StateBrowsing, StateShopping, StateNeedsAddress,
		StateCheckout, StateOrderPendingCash, StateOrderPendingTransfer,
		StateOrderPendingMP, StateOrderConfirmed,
	}
	for _, s := range nonTerminal {
		if !CanTransition(s, StateOrderCancelled) {
			t.Errorf("expected %s -> order_cancelled to be legal", s)
		}
	}
	for _, s := range []State{StateOrderCompleted, StateOrderCancelled} {
		if CanTransition(s, StateOrderCancelled) {
			t.Errorf("expected terminal %s -> order_cancelled to be illegal", s)
		}
	}
}

func TestCanTransition_NoBackwardsJumps(t *testing.T) {
	illegal := []struct{ from, to State }{
		{StateCheckout, StateBrowsing},
		{StateOrderConfirmed, StateShopping},
		{StateOrderCompleted, StateCheckout},
		{StateIdle, StateCheckout},
		{StateBrowsing, StateOrderPendingCash},
	}
	for _, c := range illegal {
		if CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be illegal", c.from, c.to)
		}
	}
}

func TestStatePredicates(t *testing.T) {
	if !StateOrderPendingMP.OrderActive() || !StateOrderConfirmed.OrderActive() {
		t.Error("pending/confirmed states must report an active order")
	}
	if StateShopping.OrderActive() {
		t.Error("shopping must not report an active order")
	}
	if !StateIdle.AllowsBrowsing() || !StateBrowsing.AllowsBrowsing() {
		t.Error("idle and browsing must allow browsing tools")
	}
	if StateShopping.AllowsBrowsing() {
		t.Error("shopping must not allow browsing tools")
	}
	if !StateShopping.AllowsCartEdit() {
		t.Error("shopping must allow cart edits")
	}
	if StateCheckout.AllowsCartEdit() {
		t.Error("checkout must not allow cart edits")
	}
}

func TestPendingStateFor(t *testing.T) {
	cases := map[string]State{
		PaymentCash:     StateOrderPendingCash,
		PaymentTransfer: StateOrderPendingTransfer,
		PaymentMP:       StateOrderPendingMP,
	}
	for method, want := range cases {
		got, ok := PendingStateFor(method)
		if !ok || got != want {
			t.Errorf("PendingStateFor(%q) = %q, %v; want %q, true", method, got, ok, want)
		}
	}
	if _, ok := PendingStateFor("crypto"); ok {
		t.Error("unknown payment method must not map to a state")
	}
}
