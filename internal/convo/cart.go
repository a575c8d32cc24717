package convo

import (
	"strings"

	"github.com/tiendi/tiendi/internal/domain"
)

// UpsertLine adds a resolved line to the cart, keyed by (product id, variant
// label). A repeated add for the same key accumulates quantity instead of
// duplicating the line. The total is recomputed before returning.
func UpsertLine(cart *domain.PendingOrder, line domain.LineItem) *domain.PendingOrder {
	if cart == nil {
		cart = &domain.PendingOrder{}
	}
	if line.Quantity <= 0 {
		line.Quantity = 1
	}

	for i, existing := range cart.Items {
		if existing.ProductID != "" &&
			existing.ProductID == line.ProductID &&
			existing.VariantLabel == line.VariantLabel {
			cart.Items[i].Quantity += line.Quantity
			Recompute(cart)
			return cart
		}
	}

	cart.Items = append(cart.Items, line)
	Recompute(cart)
	return cart
}

// RemoveLine removes lines matching the reference, by product id or by
// substring match on the stored free-text query. Returns whether anything
// was removed.
func RemoveLine(cart *domain.PendingOrder, ref string) bool {
	if cart == nil || ref == "" {
		return false
	}
	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if lineMatches(item, ref) {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	cart.Items = kept
	Recompute(cart)
	return removed
}

// SetQuantity updates the quantity on the first line matching the reference.
// A quantity ≤ 0 removes the line. Returns whether a line matched.
func SetQuantity(cart *domain.PendingOrder, ref string, quantity int) bool {
	if cart == nil || ref == "" {
		return false
	}
	for i, item := range cart.Items {
		if !lineMatches(item, ref) {
			continue
		}
		if quantity <= 0 {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		} else {
			cart.Items[i].Quantity = quantity
		}
		Recompute(cart)
		return true
	}
	return false
}

// Recompute sets the cart total to Σ(unitPrice × quantity) over resolved
// lines. Unresolved free-text lines carry no price and contribute nothing.
func Recompute(cart *domain.PendingOrder) {
	var total float64
	for _, item := range cart.Items {
		if item.Resolved() {
			total += item.UnitPrice * float64(item.Quantity)
		}
	}
	cart.Total = total
}

// ResolvedItems returns only the lines that map to real catalog entries.
func ResolvedItems(cart *domain.PendingOrder) []domain.LineItem {
	if cart == nil {
		return nil
	}
	var out []domain.LineItem
	for _, item := range cart.Items {
		if item.Resolved() {
			out = append(out, item)
		}
	}
	return out
}

// lineMatches checks a removal/update reference against a line: exact
// product id, or case-insensitive substring of the stored query or product
// name.
func lineMatches(item domain.LineItem, ref string) bool {
	if item.ProductID != "" && item.ProductID == ref {
		return true
	}
	lowRef := strings.ToLower(ref)
	if item.Query != "" && strings.Contains(strings.ToLower(item.Query), lowRef) {
		return true
	}
	if item.ProductName != "" && strings.Contains(strings.ToLower(item.ProductName), lowRef) {
		return true
	}
	return false
}
