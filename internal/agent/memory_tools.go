package agent

import (
	"context"
	"strings"

	"github.com/tiendi/tiendi/internal/domain"
)

// noteAuthor marks staff notes written by the agent itself.
const noteAuthor = "agent"

func (e *toolExecutor) savePreference(ctx context.Context, in SavePreferenceInput) toolOutcome {
	if e.conv.CustomerID == "" {
		return failure(ToolSavePreference, "no customer profile linked", nil)
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return failure(ToolSavePreference, "empty content", nil)
	}

	var kind domain.MemoryFactKind
	switch in.Kind {
	case "allergy":
		kind = domain.FactAllergy
	case "restriction":
		kind = domain.FactRestriction
	case "behavior":
		kind = domain.FactBehavior
	default:
		kind = domain.FactPreference
	}

	if err := e.r.customers.SaveFact(ctx, e.conv.CustomerID, kind, content); err != nil {
		return failure(ToolSavePreference, "failed to save", nil)
	}
	return success(ToolSavePreference, "remembered", map[string]any{"kind": string(kind), "content": content})
}

func (e *toolExecutor) saveAddress(ctx context.Context, in SaveAddressInput) toolOutcome {
	if e.conv.CustomerID == "" {
		return failure(ToolSaveAddress, "no customer profile linked", nil)
	}
	address := strings.TrimSpace(in.Address)
	if address == "" {
		return failure(ToolSaveAddress, "empty address", nil)
	}

	addr := domain.CustomerAddress{
		Label:   strings.TrimSpace(in.Label),
		Address: address,
		Default: in.Default,
	}
	if err := e.r.customers.SaveAddress(ctx, e.conv.CustomerID, addr); err != nil {
		return failure(ToolSaveAddress, "failed to save", nil)
	}
	return success(ToolSaveAddress, "address saved", map[string]any{"label": addr.Label, "address": addr.Address})
}

func (e *toolExecutor) addStaffNote(ctx context.Context, in AddStaffNoteInput) toolOutcome {
	if e.conv.CustomerID == "" {
		return failure(ToolAddStaffNote, "no customer profile linked", nil)
	}
	note := strings.TrimSpace(in.Note)
	if note == "" {
		return failure(ToolAddStaffNote, "empty note", nil)
	}
	if err := e.r.customers.AddNote(ctx, e.conv.CustomerID, noteAuthor, note); err != nil {
		return failure(ToolAddStaffNote, "failed to save", nil)
	}
	return success(ToolAddStaffNote, "note added", nil)
}

func (e *toolExecutor) requestDataDeletion(ctx context.Context) toolOutcome {
	if e.conv.CustomerID == "" {
		return failure(ToolRequestDataDeletion, "no customer profile linked", nil)
	}
	if err := e.r.customers.Delete(ctx, e.conv.CustomerID); err != nil {
		return failure(ToolRequestDataDeletion, "failed to delete", nil)
	}
	e.customer = nil
	return success(ToolRequestDataDeletion, "customer profile deleted", nil)
}
