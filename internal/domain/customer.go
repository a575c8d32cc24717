package domain

import "time"

// MemoryFactKind classifies a remembered fact about a customer.
type MemoryFactKind string

const (
	FactAllergy     MemoryFactKind = "allergy"
	FactRestriction MemoryFactKind = "restriction"
	FactPreference  MemoryFactKind = "preference"
	FactBehavior    MemoryFactKind = "behavior"
)

// MemoryFact is one remembered fact about a customer, written either by the
// agent's memory tools or by the background analytics job.
type MemoryFact struct {
	ID        string         `json:"id"`
	Kind      MemoryFactKind `json:"kind"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
}

// CustomerAddress is a saved delivery address.
type CustomerAddress struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"` // "home", "office"
	Address string `json:"address"`
	Default bool   `json:"default,omitempty"`
}

// StaffNote is a free-form note about a customer, visible to staff and to
// the agent's prompt.
type StaffNote struct {
	ID        string    `json:"id"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Customer is a durable customer profile, optionally linked from a
// conversation.
type Customer struct {
	ID         string            `json:"id"`
	BusinessID string            `json:"businessId"`
	Name       string            `json:"name,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Addresses  []CustomerAddress `json:"addresses,omitempty"`
	Facts      []MemoryFact      `json:"facts,omitempty"`
	Notes      []StaffNote       `json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// DefaultAddress returns the customer's default address, or the first saved
// one when none is marked default.
func (c *Customer) DefaultAddress() (CustomerAddress, bool) {
	for _, a := range c.Addresses {
		if a.Default {
			return a, true
		}
	}
	if len(c.Addresses) > 0 {
		return c.Addresses[0], true
	}
	return CustomerAddress{}, false
}

// FactsOfKind filters the customer's facts by kind.
func (c *Customer) FactsOfKind(kind MemoryFactKind) []MemoryFact {
	var out []MemoryFact
	for _, f := range c.Facts {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Business is the merchant identity rendered into the agent prompt.
type Business struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Hours    string `json:"hours,omitempty"`
	Currency string `json:"currency,omitempty"`
}
