package tools

import "github.com/pedidolabs/pedidobot/internal/providers"

// Definitions returns the tool schemas offered to the LLM on every turn.
// The model decides intent; the gateway decides legality.
func Definitions() []providers.ToolDefinition {
	return []providers.ToolDefinition{
		fn("search_vendors", "Search active vendors by name or category. Use when the customer asks what shops are available or wants a type of food.",
			obj(map[string]any{
				"query": prop("string", "Free-text search, e.g. 'pizzeria' or 'empanadas'"),
			}, "query")),
		fn("list_products", "List the available products of a vendor. Defaults to the currently selected vendor.",
			obj(map[string]any{
				"vendor_id": prop("string", "Vendor to list; omit for the selected vendor"),
			})),
		fn("select_vendor", "Select the vendor the customer wants to order from.",
			obj(map[string]any{
				"vendor_id": prop("string", "Vendor identifier from search_vendors"),
			}, "vendor_id")),
		fn("confirm_vendor_change", "Confirm or discard a pending vendor switch that would empty the cart.",
			obj(map[string]any{
				"confirm": prop("boolean", "true to switch vendor and empty the cart, false to keep the current cart"),
			}, "confirm")),
		fn("add_to_cart", "Add a product of the selected vendor to the cart.",
			obj(map[string]any{
				"product_id": prop("string", "Product identifier from list_products"),
				"quantity":   prop("integer", "Units to add, at least 1"),
			}, "product_id", "quantity")),
		fn("remove_from_cart", "Remove a product from the cart entirely.",
			obj(map[string]any{
				"product_id": prop("string", "Product to remove"),
			}, "product_id")),
		fn("update_quantity", "Change the quantity of a product already in the cart. Quantity 0 removes it.",
			obj(map[string]any{
				"product_id": prop("string", "Product already in the cart"),
				"quantity":   prop("integer", "New quantity, 0 to remove"),
			}, "product_id", "quantity")),
		fn("show_cart", "Show the current cart contents and running total.",
			obj(nil)),
		fn("set_delivery_type", "Record whether the order is delivered or picked up.",
			obj(map[string]any{
				"type": propEnum("string", "Fulfillment mode", "delivery", "pickup"),
			}, "type")),
		fn("set_delivery_address", "Record the street address for a delivery order.",
			obj(map[string]any{
				"address": prop("string", "Full street address"),
			}, "address")),
		fn("set_payment_method", "Record how the customer will pay.",
			obj(map[string]any{
				"method": propEnum("string", "Payment method", "cash", "transfer", "mp"),
			}, "method")),
		fn("show_order_summary", "Show the full order summary (items, delivery, payment, total) for the customer to review before placing the order. Must be shown before create_order.",
			obj(nil)),
		fn("create_order", "Place the order. Only call after the customer has seen the summary and confirmed.",
			obj(nil)),
		fn("check_order_status", "Look up the status of the customer's current or most recent order.",
			obj(nil)),
		fn("cancel_order", "Cancel the order in progress or the pending placed order.",
			obj(nil)),
		fn("new_order", "Start a fresh order after the previous one finished or was cancelled.",
			obj(nil)),
	}
}

func fn(name, description string, params map[string]any) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

func obj(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func propEnum(typ, description string, values ...string) map[string]any {
	return map[string]any{"type": typ, "description": description, "enum": values}
}
