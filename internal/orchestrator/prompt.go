package orchestrator

import (
	"fmt"
	"strings"

	"github.com/pedidolabs/pedidobot/internal/convo"
)

const defaultSystemPrompt = `Sos %s, el asistente de pedidos por WhatsApp de una red de comercios argentinos.

Tu trabajo es ayudar al cliente a armar y confirmar un pedido. Hablás en
español rioplatense, con un tono cercano y directo. Mensajes cortos: esto
es WhatsApp, no un mail.

Reglas:
- Toda acción sobre el pedido pasa por las herramientas. Nunca inventes
  locales, productos ni precios: usá search_vendors y list_products.
- Los precios que devuelven las herramientas ya vienen formateados en
  pesos. Repetilos tal cual.
- Antes de crear el pedido siempre mostrá el resumen con
  show_order_summary y esperá que el cliente lo confirme.
- Si una herramienta rechaza una acción, leé el motivo y resolvelo con el
  cliente en lugar de reintentar lo mismo.
- Si el cliente pide hablar con una persona, no lo discutas.
- No prometas tiempos de entrega ni descuentos que las herramientas no
  confirmen.`

// contextSnapshot renders the order state as a second system message so
// the model never has to infer it from history.
func contextSnapshot(c *convo.Context) string {
	var b strings.Builder
	b.WriteString("Estado actual de la conversación:\n")
	fmt.Fprintf(&b, "- Etapa del pedido: %s\n", c.OrderState)

	if c.SelectedVendorName != "" {
		fmt.Fprintf(&b, "- Local elegido: %s\n", c.SelectedVendorName)
	} else {
		b.WriteString("- Local elegido: ninguno\n")
	}

	if len(c.Cart) == 0 {
		b.WriteString("- Carrito: vacío\n")
	} else {
		fmt.Fprintf(&b, "- Carrito: %d producto(s)\n", len(c.Cart))
		for _, item := range c.Cart {
			fmt.Fprintf(&b, "  - %dx %s\n", item.Quantity, item.ProductName)
		}
	}

	if c.DeliveryType != "" {
		fmt.Fprintf(&b, "- Entrega: %s\n", c.DeliveryType)
	}
	if c.DeliveryAddress != "" {
		fmt.Fprintf(&b, "- Dirección: %s\n", c.DeliveryAddress)
	}
	if c.PaymentMethod != "" {
		fmt.Fprintf(&b, "- Pago: %s\n", c.PaymentMethod)
	}
	if c.PendingVendorChange != nil {
		fmt.Fprintf(&b, "- Cambio de local pendiente de confirmación: %s\n", c.PendingVendorChange.NewVendorName)
	}
	if c.PendingOrderID != "" {
		fmt.Fprintf(&b, "- Pedido en curso: %s\n", c.PendingOrderID)
	}
	return strings.TrimRight(b.String(), "\n")
}
