package agent

import (
	"fmt"
	"strings"

	"github.com/tiendi/tiendi/internal/domain"
)

// PromptContext carries everything the system prompt is built from.
type PromptContext struct {
	Business     domain.Business
	Products     []domain.Product
	Conversation *domain.Conversation
	Customer     *domain.Customer
}

// BuildSystemPrompt renders the agent's system prompt: business identity,
// the flattened catalog, the pending order, channel framing, and the
// customer profile when one is linked.
func BuildSystemPrompt(pc PromptContext) string {
	var b strings.Builder

	biz := pc.Business
	fmt.Fprintf(&b, "You are the virtual sales assistant for %s. ", biz.Name)
	b.WriteString("You take orders over chat, answer questions about the catalog, and guide the customer to a completed order.\n\n")

	b.WriteString("## Business\n")
	fmt.Fprintf(&b, "Name: %s\n", biz.Name)
	if biz.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", biz.Address)
	}
	if biz.Hours != "" {
		fmt.Fprintf(&b, "Hours: %s\n", biz.Hours)
	}
	if biz.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", biz.Phone)
	}

	b.WriteString("\n## Catalog\n")
	if len(pc.Products) == 0 {
		b.WriteString("(no products available right now)\n")
	}
	for _, p := range pc.Products {
		variants := p.AvailableVariants()
		if len(variants) == 0 {
			fmt.Fprintf(&b, "- %s — $%.2f\n", p.Name, p.Price)
			continue
		}
		fmt.Fprintf(&b, "- %s:\n", p.Name)
		for _, v := range variants {
			fmt.Fprintf(&b, "    - %s — $%.2f (%d in stock)\n", v.Label(), v.Price, v.Stock)
		}
	}

	if conv := pc.Conversation; conv != nil {
		writeOrderSection(&b, conv)
		writeChannelSection(&b, conv.Channel)
	}

	if pc.Customer != nil {
		writeCustomerSection(&b, pc.Customer)
	}

	b.WriteString("\n## Rules\n")
	b.WriteString("- Reply in the customer's language.\n")
	b.WriteString("- Keep replies short; this is a chat, not email.\n")
	b.WriteString("- Use the tools to change the order; never claim an order changed without a tool call.\n")
	b.WriteString("- Only call submit_order with customer_confirmed=true after the customer explicitly confirmed the complete order.\n")
	b.WriteString("- Never tell the customer an order was placed unless the submit_order result has ok=true.\n")
	b.WriteString("- If a tool reports ambiguity or no match, present the listed options to the customer.\n")

	return b.String()
}

func writeOrderSection(b *strings.Builder, conv *domain.Conversation) {
	b.WriteString("\n## Current order\n")
	if conv.PendingOrder == nil || len(conv.PendingOrder.Items) == 0 {
		b.WriteString("(empty)\n")
	} else {
		for _, li := range conv.PendingOrder.Items {
			label := li.ProductName
			if li.VariantLabel != "" {
				label += " - " + li.VariantLabel
			}
			if label == "" {
				label = li.Query + " (unresolved)"
			}
			fmt.Fprintf(b, "- %dx %s @ $%.2f\n", li.Quantity, label, li.UnitPrice)
		}
		fmt.Fprintf(b, "Total: $%.2f\n", conv.PendingOrder.Total)
	}
	if conv.PendingDelivery != nil {
		if conv.PendingDelivery.Method == domain.DeliveryPickup {
			b.WriteString("Delivery: pickup\n")
		} else {
			fmt.Fprintf(b, "Delivery: to %s\n", conv.PendingDelivery.Address)
		}
	}
}

func writeChannelSection(b *strings.Builder, ch domain.ChannelType) {
	b.WriteString("\n## Channel\n")
	switch ch {
	case domain.ChannelWhatsApp:
		b.WriteString("The customer is on WhatsApp. You already have their phone number; never ask for it.\n")
	case domain.ChannelMessenger:
		b.WriteString("The customer is on Messenger. Ask for a phone number only if delivery requires one.\n")
	case domain.ChannelInstagram:
		b.WriteString("The customer is on Instagram. Ask for a phone number only if delivery requires one.\n")
	}
}

func writeCustomerSection(b *strings.Builder, c *domain.Customer) {
	b.WriteString("\n## Customer\n")
	if c.Name != "" {
		fmt.Fprintf(b, "Name: %s\n", c.Name)
	}

	if allergies := c.FactsOfKind(domain.FactAllergy); len(allergies) > 0 {
		b.WriteString("!!! ALLERGIES — NEVER suggest or add products containing these:\n")
		for _, f := range allergies {
			fmt.Fprintf(b, "- %s\n", f.Content)
		}
	}
	if restrictions := c.FactsOfKind(domain.FactRestriction); len(restrictions) > 0 {
		b.WriteString("Dietary restrictions:\n")
		for _, f := range restrictions {
			fmt.Fprintf(b, "- %s\n", f.Content)
		}
	}
	if prefs := c.FactsOfKind(domain.FactPreference); len(prefs) > 0 {
		b.WriteString("Preferences:\n")
		for _, f := range prefs {
			fmt.Fprintf(b, "- %s\n", f.Content)
		}
	}
	if addr, ok := c.DefaultAddress(); ok {
		fmt.Fprintf(b, "Default address: %s\n", addr.Address)
	}
	if len(c.Notes) > 0 {
		b.WriteString("Staff notes:\n")
		for _, n := range c.Notes {
			fmt.Fprintf(b, "- %s\n", n.Content)
		}
	}
}
