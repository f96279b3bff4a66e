package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pedidolabs/pedidobot/internal/convo"
)

func (g *Gateway) searchVendors(ctx context.Context, c *convo.Context, args map[string]any) *Result {
	if c.OrderState.OrderActive() {
		return RejectResult("an order is already in flight; offer to check its status or cancel it before browsing vendors")
	}
	if !c.OrderState.AllowsBrowsing() && c.OrderState != convo.StateShopping {
		return RejectResult(fmt.Sprintf("cannot browse vendors in state %s; finish or cancel the current order first", c.OrderState))
	}

	query := strArg(args, "query")
	if query == "" {
		return RejectResult("query must not be empty")
	}

	vendors, err := g.catalog.SearchVendors(query)
	if err != nil {
		return ErrorResult("vendor search failed").WithError(err)
	}
	if len(vendors) == 0 {
		return NewResult(fmt.Sprintf("no active vendors match %q; suggest the customer try another term", query))
	}

	if c.OrderState == convo.StateIdle {
		c.OrderState = convo.StateBrowsing
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d vendors found:\n", len(vendors))
	for _, v := range vendors {
		fmt.Fprintf(&b, "- id=%s %s", v.ID, v.Name)
		if v.Category != "" {
			fmt.Fprintf(&b, " (%s)", v.Category)
		}
		if v.Address != "" {
			fmt.Fprintf(&b, " — %s", v.Address)
		}
		b.WriteByte('\n')
	}
	return NewResult(b.String())
}

func (g *Gateway) listProducts(ctx context.Context, c *convo.Context, args map[string]any) *Result {
	if c.OrderState.OrderActive() || c.OrderState.Terminal() {
		return RejectResult(fmt.Sprintf("cannot list products in state %s", c.OrderState))
	}

	vendorID := strArg(args, "vendor_id")
	if vendorID == "" {
		vendorID = c.SelectedVendorID
	}
	if vendorID == "" {
		return RejectResult("no vendor selected; call search_vendors and select_vendor first")
	}

	products, err := g.catalog.ListProducts(vendorID)
	if err != nil {
		return ErrorResult("product listing failed").WithError(err)
	}
	if len(products) == 0 {
		return NewResult("this vendor has no available products right now")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d products:\n", len(products))
	for _, p := range products {
		fmt.Fprintf(&b, "- id=%s %s %s", p.ID, p.Name, formatCents(p.PriceCents))
		if p.Description != "" {
			fmt.Fprintf(&b, " (%s)", p.Description)
		}
		b.WriteByte('\n')
	}
	return NewResult(b.String())
}

func (g *Gateway) selectVendor(ctx context.Context, c *convo.Context, args map[string]any) *Result {
	if c.OrderState.OrderActive() || c.OrderState.Terminal() {
		return RejectResult(fmt.Sprintf("cannot change vendor in state %s", c.OrderState))
	}

	vendorID := strArg(args, "vendor_id")
	if vendorID == "" {
		return RejectResult("vendor_id is required")
	}
	if vendorID == c.SelectedVendorID {
		return NewResult(fmt.Sprintf("vendor %s is already selected", c.SelectedVendorName))
	}

	vendor, err := g.catalog.VendorByID(vendorID)
	if err != nil {
		return ErrorResult("vendor lookup failed").WithError(err)
	}
	if vendor == nil || !vendor.Active {
		return RejectResult(fmt.Sprintf("vendor %q does not exist or is inactive", vendorID))
	}

	// Switching vendors would orphan the cart; make the customer decide.
	if len(c.Cart) > 0 {
		c.PendingVendorChange = &convo.VendorChange{NewVendorID: vendor.ID, NewVendorName: vendor.Name}
		return RejectResult(fmt.Sprintf(
			"the cart holds %d items from %s; switching to %s empties it. Ask the customer to confirm, then call confirm_vendor_change",
			len(c.Cart), c.SelectedVendorName, vendor.Name))
	}

	c.SelectedVendorID = vendor.ID
	c.SelectedVendorName = vendor.Name
	if c.OrderState == convo.StateIdle {
		c.OrderState = convo.StateBrowsing
	}
	return NewResult(fmt.Sprintf("vendor %s selected", vendor.Name))
}

func (g *Gateway) confirmVendorChange(ctx context.Context, c *convo.Context, args map[string]any) *Result {
	if c.PendingVendorChange == nil {
		return RejectResult("no vendor change is pending")
	}
	confirm, ok := boolArg(args, "confirm")
	if !ok {
		return RejectResult("confirm must be true or false")
	}

	pending := c.PendingVendorChange
	c.PendingVendorChange = nil

	if !confirm {
		return NewResult(fmt.Sprintf("kept the cart with %s; vendor change discarded", c.SelectedVendorName))
	}

	c.Cart = nil
	c.SelectedVendorID = pending.NewVendorID
	c.SelectedVendorName = pending.NewVendorName
	c.InvalidateSummary()
	c.OrderState = convo.StateBrowsing
	return NewResult(fmt.Sprintf("cart emptied, vendor switched to %s", pending.NewVendorName))
}
