package domain

import "strings"

// Option is one (name, value) pair on a variant, e.g. size=Medium.
type Option struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant is a specific purchasable option-combination of a product.
// Variants carry up to three options. They are immutable from the agent's
// perspective; only catalog-sync jobs write them.
type Variant struct {
	ID        string   `json:"id"`
	ProductID string   `json:"productId"`
	Options   []Option `json:"options"`
	Price     float64  `json:"price"`
	Stock     int      `json:"stock"`
	Available bool     `json:"available"`
}

// Label renders the option values joined for display and line-item keys,
// e.g. "Medium / Red".
func (v Variant) Label() string {
	vals := make([]string, 0, len(v.Options))
	for _, o := range v.Options {
		vals = append(vals, o.Value)
	}
	return strings.Join(vals, " / ")
}

// OptionValue returns the value for the named option, if present.
func (v Variant) OptionValue(name string) (string, bool) {
	for _, o := range v.Options {
		if strings.EqualFold(o.Name, name) {
			return o.Value, true
		}
	}
	return "", false
}

// Product is a catalog entry. A product may own zero or more variants;
// variant-less products are sold at the product price.
type Product struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"businessId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Available   bool      `json:"available"`
	Variants    []Variant `json:"variants,omitempty"`
}

// AvailableVariants returns the purchasable variants of the product.
func (p Product) AvailableVariants() []Variant {
	out := make([]Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v.Available {
			out = append(out, v)
		}
	}
	return out
}
