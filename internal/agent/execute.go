package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tiendi/tiendi/internal/catalog"
	"github.com/tiendi/tiendi/internal/convo"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/llm"
)

// toolExecutor applies one turn's tool calls sequentially against the
// conversation. Each call sees the in-memory result of the previous one,
// keeping cart math deterministic within the turn.
type toolExecutor struct {
	r         *Runner
	conv      *domain.Conversation
	products  []domain.Product
	customer  *domain.Customer
	escalated bool
}

// execute dispatches one tool call. The switch is exhaustive over ToolName.
func (e *toolExecutor) execute(ctx context.Context, call llm.ToolCall) toolOutcome {
	name := ToolName(call.Name)
	switch name {
	case ToolUpdateOrder:
		var in UpdateOrderInput
		if !llm.DecodeLoose(call.Input, &in) {
			return failure(name, "malformed input", nil)
		}
		return e.updateOrder(ctx, in)

	case ToolSetDelivery:
		var in SetDeliveryInput
		if !llm.DecodeLoose(call.Input, &in) {
			return failure(name, "malformed input", nil)
		}
		return e.setDelivery(ctx, in)

	case ToolSubmitOrder:
		var in SubmitOrderInput
		if !llm.DecodeLoose(call.Input, &in) {
			return failure(name, "malformed input", nil)
		}
		return e.submitOrder(ctx, in)

	case ToolCancelOrder:
		return e.cancelOrder(ctx)

	case ToolEscalateToHuman:
		var in EscalateInput
		llm.DecodeLoose(call.Input, &in)
		return e.escalate(ctx, in)

	case ToolSavePreference:
		var in SavePreferenceInput
		if !llm.DecodeLoose(call.Input, &in) {
			return failure(name, "malformed input", nil)
		}
		return e.savePreference(ctx, in)

	case ToolSaveAddress:
		var in SaveAddressInput
		if !llm.DecodeLoose(call.Input, &in) {
			return failure(name, "malformed input", nil)
		}
		return e.saveAddress(ctx, in)

	case ToolAddStaffNote:
		var in AddStaffNoteInput
		if !llm.DecodeLoose(call.Input, &in) {
			return failure(name, "malformed input", nil)
		}
		return e.addStaffNote(ctx, in)

	case ToolRequestDataDeletion:
		return e.requestDataDeletion(ctx)
	}
	return failure(name, fmt.Sprintf("unknown tool %q", call.Name), nil)
}

func (e *toolExecutor) updateOrder(ctx context.Context, in UpdateOrderInput) toolOutcome {
	switch in.Action {
	case "add":
		return e.addItem(ctx, in)
	case "remove":
		return e.removeItem(ctx, in)
	case "set_quantity":
		return e.setItemQuantity(ctx, in)
	case "clear":
		return e.clearCart(ctx)
	}
	return failure(ToolUpdateOrder, fmt.Sprintf("unknown action %q", in.Action), nil)
}

func (e *toolExecutor) addItem(ctx context.Context, in UpdateOrderInput) toolOutcome {
	product := e.findProduct(in.ProductID, in.Item)
	if product == nil {
		return failure(ToolUpdateOrder, "product not found", map[string]any{
			"requested": in.Item,
			"available": productNames(e.products),
		})
	}

	line := domain.LineItem{
		Query:       strings.TrimSpace(strings.Join([]string{in.Item, in.Variant}, " ")),
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		Quantity:    in.Quantity,
	}

	variants := product.AvailableVariants()
	if len(variants) > 0 {
		query := in.Variant
		if query == "" {
			query = in.Item
		}
		var partial *domain.PartialVariantSelection
		if e.conv.PartialSelection != nil && e.conv.PartialSelection.ProductID == product.ID {
			partial = e.conv.PartialSelection
		}

		res := catalog.ResolveVariant(query, variants, partial)
		switch res.Kind {
		case catalog.Resolved:
			line.VariantLabel = res.Variant.Label()
			line.UnitPrice = res.Variant.Price
			e.conv.PartialSelection = nil

		case catalog.Ambiguous:
			// Remember what narrowed so the next message only has to
			// disambiguate the rest.
			e.conv.PartialSelection = mergeSelection(partial, product.ID, res.Candidates)
			if err := e.r.convos.SavePartialSelection(ctx, e.conv.ID, e.conv.PartialSelection); err != nil {
				return failure(ToolUpdateOrder, "failed to save selection", nil)
			}
			return failure(ToolUpdateOrder, "variant is ambiguous, ask the customer to choose", map[string]any{
				"product": product.Name,
				"options": variantChoices(res.Candidates),
			})

		case catalog.NoMatch:
			return failure(ToolUpdateOrder, "no variant matches, show the customer the options", map[string]any{
				"product": product.Name,
				"options": variantChoices(res.Candidates),
			})

		case catalog.MissingQuery:
			return failure(ToolUpdateOrder, "ask the customer which variant they want", map[string]any{
				"product": product.Name,
				"options": variantChoices(res.Candidates),
			})
		}
	}

	if out, ok := e.applyCartEvent(ctx); !ok {
		return out
	}
	e.conv.PendingOrder = convo.UpsertLine(e.conv.PendingOrder, line)
	if err := e.persistPending(ctx); err != nil {
		return failure(ToolUpdateOrder, "failed to save order", nil)
	}
	return success(ToolUpdateOrder, "item added", cartSummary(e.conv.PendingOrder))
}

func (e *toolExecutor) removeItem(ctx context.Context, in UpdateOrderInput) toolOutcome {
	ref := in.ProductID
	if ref == "" {
		ref = in.Item
	}
	if e.conv.PendingOrder == nil || !cartHasMatch(e.conv.PendingOrder, ref) {
		return failure(ToolUpdateOrder, "no matching item in the order", cartSummary(e.conv.PendingOrder))
	}
	if out, ok := e.applyCartEvent(ctx); !ok {
		return out
	}
	convo.RemoveLine(e.conv.PendingOrder, ref)
	if err := e.persistPending(ctx); err != nil {
		return failure(ToolUpdateOrder, "failed to save order", nil)
	}
	return success(ToolUpdateOrder, "item removed", cartSummary(e.conv.PendingOrder))
}

func (e *toolExecutor) setItemQuantity(ctx context.Context, in UpdateOrderInput) toolOutcome {
	ref := in.ProductID
	if ref == "" {
		ref = in.Item
	}
	if e.conv.PendingOrder == nil || !cartHasMatch(e.conv.PendingOrder, ref) {
		return failure(ToolUpdateOrder, "no matching item in the order", cartSummary(e.conv.PendingOrder))
	}
	if out, ok := e.applyCartEvent(ctx); !ok {
		return out
	}
	convo.SetQuantity(e.conv.PendingOrder, ref, in.Quantity)
	if err := e.persistPending(ctx); err != nil {
		return failure(ToolUpdateOrder, "failed to save order", nil)
	}
	return success(ToolUpdateOrder, "quantity updated", cartSummary(e.conv.PendingOrder))
}

func (e *toolExecutor) clearCart(ctx context.Context) toolOutcome {
	if e.conv.PendingOrder == nil || len(e.conv.PendingOrder.Items) == 0 {
		return failure(ToolUpdateOrder, "the order is already empty", nil)
	}
	if out, ok := e.applyCartEvent(ctx); !ok {
		return out
	}
	e.conv.PendingOrder = &domain.PendingOrder{}
	if err := e.persistPending(ctx); err != nil {
		return failure(ToolUpdateOrder, "failed to save order", nil)
	}
	return success(ToolUpdateOrder, "order cleared", nil)
}

// applyCartEvent advances the state machine for a cart mutation and applies
// its effects. Returns (failure outcome, false) when the transition is
// rejected.
func (e *toolExecutor) applyCartEvent(ctx context.Context) (toolOutcome, bool) {
	ev := convo.Event{Kind: convo.EventCartModified}
	if !e.conv.Ordering() {
		ev.Kind = convo.EventStartOrder
	}
	newState, effects, err := convo.Transition(e.conv.State, ev)
	if err != nil {
		return failure(ToolUpdateOrder, err.Error(), nil), false
	}
	for _, eff := range effects {
		if eff == convo.EffectClearDelivery {
			e.conv.PendingDelivery = nil
		}
	}
	if newState != e.conv.State {
		if err := e.r.convos.SetState(ctx, e.conv.ID, newState); err != nil {
			return failure(ToolUpdateOrder, "failed to save state", nil), false
		}
		e.conv.State = newState
	}
	return toolOutcome{}, true
}

func (e *toolExecutor) setDelivery(ctx context.Context, in SetDeliveryInput) toolOutcome {
	var method domain.DeliveryMethod
	switch in.Method {
	case "pickup":
		method = domain.DeliveryPickup
	case "delivery":
		method = domain.DeliveryCourier
	default:
		return failure(ToolSetDelivery, fmt.Sprintf("unknown method %q", in.Method), nil)
	}

	delivery := &domain.PendingDelivery{Method: method, Address: strings.TrimSpace(in.Address)}
	if method == domain.DeliveryCourier && delivery.Address == "" && e.customer != nil {
		if addr, ok := e.customer.DefaultAddress(); ok {
			delivery.Address = addr.Address
		}
	}

	e.conv.PendingDelivery = delivery
	if !delivery.Complete() {
		if err := e.persistPending(ctx); err != nil {
			return failure(ToolSetDelivery, "failed to save delivery", nil)
		}
		return failure(ToolSetDelivery, "delivery address needed, ask the customer for it", nil)
	}

	newState, _, err := convo.Transition(e.conv.State, convo.Event{Kind: convo.EventDeliverySet})
	if err != nil {
		return failure(ToolSetDelivery, err.Error(), nil)
	}
	if err := e.persistPending(ctx); err != nil {
		return failure(ToolSetDelivery, "failed to save delivery", nil)
	}
	if newState != e.conv.State {
		if err := e.r.convos.SetState(ctx, e.conv.ID, newState); err != nil {
			return failure(ToolSetDelivery, "failed to save state", nil)
		}
		e.conv.State = newState
	}
	return success(ToolSetDelivery, "delivery set", map[string]any{
		"method":  string(method),
		"address": delivery.Address,
	})
}

func (e *toolExecutor) submitOrder(ctx context.Context, in SubmitOrderInput) toolOutcome {
	method, ok := domain.ValidPaymentMethod(in.PaymentMethod)
	if !ok {
		return failure(ToolSubmitOrder, fmt.Sprintf("unknown payment method %q", in.PaymentMethod), nil)
	}

	if res, ok := e.r.checkout.Validate(e.conv, method, in.CustomerConfirmed); !ok {
		return failure(ToolSubmitOrder, res.Reason, res)
	}

	// Delivery is known complete here; advance to payment if the customer
	// skipped the explicit confirmation step.
	if e.conv.State != domain.StatePayment {
		newState, _, err := convo.Transition(e.conv.State, convo.Event{Kind: convo.EventDeliverySet})
		if err != nil {
			return failure(ToolSubmitOrder, err.Error(), nil)
		}
		if err := e.r.convos.SetState(ctx, e.conv.ID, newState); err != nil {
			return failure(ToolSubmitOrder, "failed to save state", nil)
		}
		e.conv.State = newState
	}

	newState, effects, err := convo.Transition(e.conv.State, convo.Event{Kind: convo.EventPaymentChosen})
	if err != nil {
		return failure(ToolSubmitOrder, err.Error(), nil)
	}

	result, err := e.r.checkout.Submit(ctx, e.conv, method, in.CustomerConfirmed)
	if err != nil || !result.OK {
		// Stay in payment so the customer can retry. A partial order id in
		// the result marks it for reconciliation.
		if err != nil {
			e.r.log.Error().Err(err).Str("conversationId", e.conv.ID).Msg("checkout failed")
		}
		e.conv.State, _, _ = convo.Transition(e.conv.State, convo.Event{Kind: convo.EventCheckoutFailed})
		return failure(ToolSubmitOrder, "order creation failed, tell the customer and offer to retry", result)
	}

	for _, eff := range effects {
		switch eff {
		case convo.EffectClearPending:
			e.conv.PendingOrder = nil
			e.conv.PendingDelivery = nil
			e.conv.PartialSelection = nil
		case convo.EffectCreateOrder:
			// Already ran above.
		}
	}
	if err := e.r.convos.SavePending(ctx, e.conv.ID, nil, nil); err != nil {
		return failure(ToolSubmitOrder, "failed to clear order", result)
	}
	if err := e.r.convos.SavePartialSelection(ctx, e.conv.ID, nil); err != nil {
		return failure(ToolSubmitOrder, "failed to clear selection", result)
	}
	if err := e.r.convos.SetState(ctx, e.conv.ID, newState); err != nil {
		return failure(ToolSubmitOrder, "failed to save state", result)
	}
	e.conv.State = newState

	return success(ToolSubmitOrder, fmt.Sprintf("order #%d created", result.OrderNumber), result)
}

func (e *toolExecutor) cancelOrder(ctx context.Context) toolOutcome {
	newState, effects, err := convo.Transition(e.conv.State, convo.Event{Kind: convo.EventCancel})
	if err != nil {
		return failure(ToolCancelOrder, err.Error(), nil)
	}
	for _, eff := range effects {
		if eff == convo.EffectClearPending {
			e.conv.PendingOrder = nil
			e.conv.PendingDelivery = nil
			e.conv.PartialSelection = nil
		}
	}
	if err := e.r.convos.SavePending(ctx, e.conv.ID, nil, nil); err != nil {
		return failure(ToolCancelOrder, "failed to clear order", nil)
	}
	if err := e.r.convos.SavePartialSelection(ctx, e.conv.ID, nil); err != nil {
		return failure(ToolCancelOrder, "failed to clear selection", nil)
	}
	if err := e.r.convos.SetState(ctx, e.conv.ID, newState); err != nil {
		return failure(ToolCancelOrder, "failed to save state", nil)
	}
	e.conv.State = newState
	return success(ToolCancelOrder, "order canceled", nil)
}

func (e *toolExecutor) escalate(ctx context.Context, in EscalateInput) toolOutcome {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "agent requested handoff"
	}
	newState, _, err := convo.Transition(e.conv.State, convo.Event{Kind: convo.EventEscalate})
	if err != nil {
		return failure(ToolEscalateToHuman, err.Error(), nil)
	}
	if err := e.r.convos.SetEscalated(ctx, e.conv.ID, reason); err != nil {
		return failure(ToolEscalateToHuman, "failed to record escalation", nil)
	}
	e.conv.State = newState
	e.conv.EscalationReason = reason
	e.escalated = true
	return success(ToolEscalateToHuman, "conversation transferred to a human", nil)
}

func (e *toolExecutor) persistPending(ctx context.Context) error {
	if err := e.r.convos.SavePending(ctx, e.conv.ID, e.conv.PendingOrder, e.conv.PendingDelivery); err != nil {
		return err
	}
	if e.conv.PartialSelection == nil {
		return e.r.convos.SavePartialSelection(ctx, e.conv.ID, nil)
	}
	return nil
}

// findProduct matches an id or free-text reference against the catalog.
func (e *toolExecutor) findProduct(id, ref string) *domain.Product {
	for i := range e.products {
		if id != "" && e.products[i].ID == id {
			return &e.products[i]
		}
	}
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return nil
	}
	for i := range e.products {
		name := strings.ToLower(e.products[i].Name)
		if strings.Contains(ref, name) || strings.Contains(name, ref) {
			return &e.products[i]
		}
	}
	return nil
}

// mergeSelection records the option values every surviving candidate agrees
// on, folded into any prior selection for the same product.
func mergeSelection(prior *domain.PartialVariantSelection, productID string, candidates []domain.Variant) *domain.PartialVariantSelection {
	sel := &domain.PartialVariantSelection{ProductID: productID, Options: map[string]string{}}
	if prior != nil && prior.ProductID == productID {
		for k, v := range prior.Options {
			sel.Options[k] = v
		}
	}
	if len(candidates) == 0 {
		return sel
	}
	for _, opt := range candidates[0].Options {
		agreed := true
		for _, c := range candidates[1:] {
			val, ok := c.OptionValue(opt.Name)
			if !ok || !strings.EqualFold(val, opt.Value) {
				agreed = false
				break
			}
		}
		if agreed {
			sel.Options[opt.Name] = opt.Value
		}
	}
	return sel
}

func cartHasMatch(cart *domain.PendingOrder, ref string) bool {
	if cart == nil {
		return false
	}
	for _, item := range cart.Items {
		if item.ProductID == ref {
			return true
		}
	}
	// Fall back to convo's substring matching by probing a copy.
	probe := domain.PendingOrder{Items: append([]domain.LineItem(nil), cart.Items...)}
	return convo.RemoveLine(&probe, ref)
}

func cartSummary(cart *domain.PendingOrder) map[string]any {
	if cart == nil {
		return map[string]any{"items": []any{}, "total": 0.0}
	}
	items := make([]map[string]any, 0, len(cart.Items))
	for _, li := range cart.Items {
		entry := map[string]any{
			"product":  li.ProductName,
			"quantity": li.Quantity,
			"price":    li.UnitPrice,
		}
		if li.VariantLabel != "" {
			entry["variant"] = li.VariantLabel
		}
		if !li.Resolved() {
			entry["unresolved"] = li.Query
		}
		items = append(items, entry)
	}
	return map[string]any{"items": items, "total": cart.Total}
}

func variantChoices(variants []domain.Variant) []string {
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		out = append(out, fmt.Sprintf("%s ($%.2f)", v.Label(), v.Price))
	}
	return out
}

func productNames(products []domain.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}
