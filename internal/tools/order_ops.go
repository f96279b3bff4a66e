package tools

import (
	"context"
	"fmt"

	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/store"
)

func (g *Gateway) checkOrderStatus(c *convo.Context) *Result {
	var (
		order *store.Order
		err   error
	)
	if c.PendingOrderID != "" {
		order, err = g.orders.Get(c.PendingOrderID)
	} else {
		order, err = g.orders.LatestForCustomer(c.Phone)
	}
	if err != nil {
		return ErrorResult("order lookup failed").WithError(err)
	}
	if order == nil {
		return NewResult("the customer has no orders on record")
	}
	return NewResult(fmt.Sprintf("order %s: status %s, total %s, placed %s",
		shortOrderID(order.ID), order.Status, formatCents(order.TotalCents),
		order.Created.Format("02/01 15:04")))
}

func (g *Gateway) cancelOrder(ctx context.Context, c *convo.Context) *Result {
	if c.OrderState.Terminal() {
		return RejectResult(fmt.Sprintf("nothing to cancel in state %s; call new_order to start over", c.OrderState))
	}
	if c.OrderState == convo.StateIdle && c.PendingOrderID == "" {
		return RejectResult("there is no order in progress to cancel")
	}

	if c.PendingOrderID != "" {
		order, err := g.orders.Get(c.PendingOrderID)
		if err != nil {
			return ErrorResult("order lookup failed").WithError(err)
		}
		if order != nil && order.Status != store.OrderCancelled && order.Status != store.OrderCompleted {
			if err := g.orders.UpdateStatus(order.ID, store.OrderCancelled); err != nil {
				return ErrorResult("could not cancel the order").WithError(err)
			}
			if g.notifier != nil {
				vendor, verr := g.catalog.VendorByID(order.VendorID)
				if verr == nil && vendor != nil {
					order.Status = store.OrderCancelled
					g.notifier.OrderCancelled(ctx, vendor, order)
				}
			}
			g.logger.Info("order cancelled", "order", order.ID, "phone", c.Phone)
		}
	}

	c.OrderState = convo.StateOrderCancelled
	c.PendingOrderID = ""
	return NewResult("order cancelled; offer to start a new one when the customer is ready")
}

func (g *Gateway) newOrder(c *convo.Context) *Result {
	// A placed order must be cancelled or completed before the context
	// can be reset for a new one.
	if c.OrderState.OrderActive() {
		return RejectResult(fmt.Sprintf("the customer already has an active order in state %s; check its status or cancel it before starting a new one", c.OrderState))
	}
	c.ResetOrder()
	return NewResult("ready for a new order; the cart is empty and no vendor is selected")
}
