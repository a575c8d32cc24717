package agent

import (
	"encoding/json"

	"github.com/tiendi/tiendi/internal/llm"
)

// ToolName enumerates the agent's tool belt. The set is closed; the
// executor switches over it exhaustively, so adding a tool is a
// compile-visible change here and in execute().
type ToolName string

const (
	ToolUpdateOrder         ToolName = "update_order"
	ToolSetDelivery         ToolName = "set_delivery"
	ToolSubmitOrder         ToolName = "submit_order"
	ToolCancelOrder         ToolName = "cancel_order"
	ToolEscalateToHuman     ToolName = "escalate_to_human"
	ToolSavePreference      ToolName = "save_customer_preference"
	ToolSaveAddress         ToolName = "save_customer_address"
	ToolAddStaffNote        ToolName = "add_staff_note"
	ToolRequestDataDeletion ToolName = "request_data_deletion"
)

// UpdateOrderInput mutates the pending cart.
type UpdateOrderInput struct {
	// Action is one of add, remove, set_quantity, clear.
	Action string `json:"action"`
	// Item is the customer's phrasing for the product ("hoodie").
	Item string `json:"item,omitempty"`
	// Variant is the customer's phrasing for the variant ("2 mediums").
	Variant   string `json:"variant,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
}

// SetDeliveryInput records the delivery preference.
type SetDeliveryInput struct {
	// Method is pickup or delivery.
	Method  string `json:"method"`
	Address string `json:"address,omitempty"`
}

// SubmitOrderInput finalizes the pending order.
type SubmitOrderInput struct {
	PaymentMethod string `json:"payment_method"`
	// CustomerConfirmed must be explicitly true; the model may only set it
	// after the customer confirmed the full order.
	CustomerConfirmed bool `json:"customer_confirmed"`
}

// EscalateInput hands the conversation to a human.
type EscalateInput struct {
	Reason string `json:"reason,omitempty"`
}

// SavePreferenceInput remembers a fact about the customer.
type SavePreferenceInput struct {
	// Kind is one of allergy, restriction, preference, behavior.
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// SaveAddressInput stores a delivery address on the customer profile.
type SaveAddressInput struct {
	Label   string `json:"label,omitempty"`
	Address string `json:"address"`
	Default bool   `json:"default,omitempty"`
}

// AddStaffNoteInput leaves a note for the business's staff.
type AddStaffNoteInput struct {
	Note string `json:"note"`
}

// toolDefinitions returns the fixed tool schema sent with every completion.
func toolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name: string(ToolUpdateOrder),
			Description: "Add, remove or change items in the customer's pending order. " +
				"Use action=add with item (and variant when the product has options), " +
				"action=remove or action=set_quantity with item or product_id, " +
				"action=clear to empty the cart.",
			InputSchema: `{"type":"object","properties":{"action":{"type":"string","enum":["add","remove","set_quantity","clear"]},"item":{"type":"string"},"variant":{"type":"string"},"product_id":{"type":"string"},"quantity":{"type":"integer"}},"required":["action"]}`,
		},
		{
			Name: string(ToolSetDelivery),
			Description: "Record how the customer wants to receive the order: " +
				"pickup, or delivery with a street address.",
			InputSchema: `{"type":"object","properties":{"method":{"type":"string","enum":["pickup","delivery"]},"address":{"type":"string"}},"required":["method"]}`,
		},
		{
			Name: string(ToolSubmitOrder),
			Description: "Finalize the pending order. Requires items, a delivery preference, " +
				"a payment method, and customer_confirmed=true — set that flag only after " +
				"the customer explicitly confirmed the complete order.",
			InputSchema: `{"type":"object","properties":{"payment_method":{"type":"string","enum":["cash","card","transfer"]},"customer_confirmed":{"type":"boolean"}},"required":["payment_method","customer_confirmed"]}`,
		},
		{
			Name:        string(ToolCancelOrder),
			Description: "Cancel the pending order when the customer abandons it.",
			InputSchema: `{"type":"object","properties":{}}`,
		},
		{
			Name: string(ToolEscalateToHuman),
			Description: "Transfer the conversation to a human. Use when the customer asks " +
				"for a person, is upset, or has a request you cannot handle.",
			InputSchema: `{"type":"object","properties":{"reason":{"type":"string"}},"required":["reason"]}`,
		},
		{
			Name: string(ToolSavePreference),
			Description: "Remember a lasting fact about the customer: an allergy, a dietary " +
				"restriction, a preference, or a behavior pattern.",
			InputSchema: `{"type":"object","properties":{"kind":{"type":"string","enum":["allergy","restriction","preference","behavior"]},"content":{"type":"string"}},"required":["kind","content"]}`,
		},
		{
			Name:        string(ToolSaveAddress),
			Description: "Save a delivery address on the customer's profile for future orders.",
			InputSchema: `{"type":"object","properties":{"label":{"type":"string"},"address":{"type":"string"},"default":{"type":"boolean"}},"required":["address"]}`,
		},
		{
			Name:        string(ToolAddStaffNote),
			Description: "Leave an internal note about this customer for the business's staff. Not visible to the customer.",
			InputSchema: `{"type":"object","properties":{"note":{"type":"string"}},"required":["note"]}`,
		},
		{
			Name:        string(ToolRequestDataDeletion),
			Description: "Delete the customer's stored profile data at their request.",
			InputSchema: `{"type":"object","properties":{}}`,
		},
	}
}

// toolOutcome is the machine-readable result of one tool call, fed back to
// the model for the narration pass.
type toolOutcome struct {
	Tool    string `json:"tool"`
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
	Data    any    `json:"data,omitempty"`
}

func (o toolOutcome) render() string {
	b, err := json.Marshal(o)
	if err != nil {
		return `{"ok":false,"summary":"unrenderable outcome"}`
	}
	return string(b)
}

func success(tool ToolName, summary string, data any) toolOutcome {
	return toolOutcome{Tool: string(tool), OK: true, Summary: summary, Data: data}
}

func failure(tool ToolName, summary string, data any) toolOutcome {
	return toolOutcome{Tool: string(tool), OK: false, Summary: summary, Data: data}
}
