package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pedidolabs/pedidobot/internal/convo"
)

func (g *Gateway) addToCart(ctx context.Context, c *convo.Context, args map[string]any) *Result {
	if !c.OrderState.AllowsCartEdit() && c.OrderState != convo.StateBrowsing {
		return RejectResult(fmt.Sprintf("cannot modify the cart in state %s", c.OrderState))
	}
	if c.SelectedVendorID == "" {
		return RejectResult("no vendor selected; call select_vendor first")
	}
	if c.PendingVendorChange != nil {
		return RejectResult("a vendor change is pending; resolve it with confirm_vendor_change first")
	}

	productID := strArg(args, "product_id")
	quantity, ok := intArg(args, "quantity")
	if productID == "" || !ok {
		return RejectResult("product_id and quantity are required")
	}
	if quantity < 1 {
		return RejectResult("quantity must be at least 1")
	}

	product, err := g.catalog.ProductByID(productID)
	if err != nil {
		return ErrorResult("product lookup failed").WithError(err)
	}
	if product == nil || !product.Available {
		return RejectResult(fmt.Sprintf("product %q does not exist or is unavailable", productID))
	}
	if product.VendorID != c.SelectedVendorID {
		return RejectResult(fmt.Sprintf("product %q belongs to another vendor, not %s", productID, c.SelectedVendorName))
	}

	found := false
	for i := range c.Cart {
		if c.Cart[i].ProductID == productID {
			c.Cart[i].Quantity += quantity
			c.Cart[i].PriceCents = product.PriceCents
			found = true
			break
		}
	}
	if !found {
		c.Cart = append(c.Cart, convo.CartItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    quantity,
			PriceCents:  product.PriceCents,
		})
	}
	c.InvalidateSummary()
	if c.OrderState == convo.StateBrowsing {
		c.OrderState = convo.StateShopping
	}

	return NewResult(fmt.Sprintf("added %dx %s; cart total %s", quantity, product.Name, formatCents(c.CartTotalCents())))
}

func (g *Gateway) removeFromCart(c *convo.Context, args map[string]any) *Result {
	if !c.OrderState.AllowsCartEdit() {
		return RejectResult(fmt.Sprintf("cannot modify the cart in state %s", c.OrderState))
	}
	productID := strArg(args, "product_id")
	if productID == "" {
		return RejectResult("product_id is required")
	}
	return g.setQuantity(c, productID, 0)
}

func (g *Gateway) updateQuantity(c *convo.Context, args map[string]any) *Result {
	if !c.OrderState.AllowsCartEdit() {
		return RejectResult(fmt.Sprintf("cannot modify the cart in state %s", c.OrderState))
	}
	productID := strArg(args, "product_id")
	quantity, ok := intArg(args, "quantity")
	if productID == "" || !ok {
		return RejectResult("product_id and quantity are required")
	}
	if quantity < 0 {
		return RejectResult("quantity must not be negative")
	}
	return g.setQuantity(c, productID, quantity)
}

func (g *Gateway) setQuantity(c *convo.Context, productID string, quantity int) *Result {
	idx := -1
	for i := range c.Cart {
		if c.Cart[i].ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return RejectResult(fmt.Sprintf("product %q is not in the cart", productID))
	}

	name := c.Cart[idx].ProductName
	if quantity == 0 {
		c.Cart = append(c.Cart[:idx], c.Cart[idx+1:]...)
	} else {
		c.Cart[idx].Quantity = quantity
	}
	c.InvalidateSummary()

	if len(c.Cart) == 0 {
		c.OrderState = convo.StateBrowsing
		return NewResult(fmt.Sprintf("removed %s; the cart is now empty", name))
	}
	if quantity == 0 {
		return NewResult(fmt.Sprintf("removed %s; cart total %s", name, formatCents(c.CartTotalCents())))
	}
	return NewResult(fmt.Sprintf("%s set to %d units; cart total %s", name, quantity, formatCents(c.CartTotalCents())))
}

func (g *Gateway) showCart(c *convo.Context) *Result {
	if len(c.Cart) == 0 {
		return NewResult("the cart is empty")
	}
	return NewResult(renderCart(c))
}

func renderCart(c *convo.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cart at %s:\n", c.SelectedVendorName)
	for _, item := range c.Cart {
		fmt.Fprintf(&b, "- %dx %s %s\n", item.Quantity, item.ProductName, formatCents(int64(item.Quantity)*item.PriceCents))
	}
	fmt.Fprintf(&b, "total: %s", formatCents(c.CartTotalCents()))
	return b.String()
}
