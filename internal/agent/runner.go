// Package agent runs the tool-calling loop: one customer message in, zero
// or more state mutations plus exactly one customer-facing reply out.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tiendi/tiendi/internal/catalog"
	"github.com/tiendi/tiendi/internal/checkout"
	"github.com/tiendi/tiendi/internal/convo"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/escalation"
	"github.com/tiendi/tiendi/internal/llm"
	"github.com/tiendi/tiendi/internal/logging"
)

// defaultHistoryWindow is how many prior messages feed the prompt.
const defaultHistoryWindow = 20

// CustomerStore is the customer-memory collaborator the agent's memory
// tools write through.
type CustomerStore interface {
	Get(ctx context.Context, id string) (*domain.Customer, error)
	SaveFact(ctx context.Context, customerID string, kind domain.MemoryFactKind, content string) error
	SaveAddress(ctx context.Context, customerID string, addr domain.CustomerAddress) error
	AddNote(ctx context.Context, customerID, author, content string) error
	Delete(ctx context.Context, customerID string) error
}

// RunnerConfig configures the agent runner.
type RunnerConfig struct {
	Model         string
	MaxTokens     int
	Temperature   *float64
	HistoryWindow int
}

// RunResult is the outcome of processing one message.
type RunResult struct {
	Reply     string        `json:"reply"`
	ToolsUsed []string      `json:"toolsUsed,omitempty"`
	Escalated bool          `json:"escalated,omitempty"`
	Usage     llm.Usage     `json:"usage"`
	Duration  time.Duration `json:"duration"`
}

// Runner is the agent orchestration loop.
type Runner struct {
	cfg       RunnerConfig
	business  domain.Business
	registry  *llm.Registry
	convos    convo.Store
	catalog   catalog.Store
	customers CustomerStore
	checkout  *checkout.Orchestrator
	log       *logging.Logger
}

// NewRunner creates an agent runner.
func NewRunner(
	cfg RunnerConfig,
	business domain.Business,
	registry *llm.Registry,
	convos convo.Store,
	catalogStore catalog.Store,
	customers CustomerStore,
	orchestrator *checkout.Orchestrator,
	log *logging.Logger,
) *Runner {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	return &Runner{
		cfg:       cfg,
		business:  business,
		registry:  registry,
		convos:    convos,
		catalog:   catalogStore,
		customers: customers,
		checkout:  orchestrator,
		log:       log.Sub("agent"),
	}
}

// Run processes one inbound customer message. Provider errors (rate limits
// in particular) propagate to the caller; the retry policy lives there.
func (r *Runner) Run(ctx context.Context, conv *domain.Conversation, text string) (*RunResult, error) {
	start := time.Now()

	lang := conv.Language
	if lang == "" {
		lang = escalation.DetectLanguage(text)
	}

	// Escalated conversations belong to a human; reply with the canned
	// transfer notice and never call the model.
	if conv.State == domain.StateEscalated {
		return &RunResult{
			Reply:     escalation.TransferredReply(lang),
			Escalated: true,
			Duration:  time.Since(start),
		}, nil
	}

	client, err := r.registry.Resolve(r.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("resolving model %q: %w", r.cfg.Model, err)
	}

	products, err := r.catalog.Products(ctx, conv.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	var customer *domain.Customer
	if conv.CustomerID != "" {
		customer, err = r.customers.Get(ctx, conv.CustomerID)
		if err != nil {
			r.log.Warn().Err(err).Str("customerId", conv.CustomerID).Msg("customer profile unavailable")
		}
	}

	history, err := r.convos.Messages(ctx, conv.ID, r.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	msgs := historyMessages(history, text)

	system := BuildSystemPrompt(PromptContext{
		Business:     r.business,
		Products:     products,
		Conversation: conv,
		Customer:     customer,
	})

	req := llm.CompletionRequest{
		Model:       r.cfg.Model,
		System:      system,
		Messages:    msgs,
		Tools:       toolDefinitions(),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	usage := resp.Usage

	exec := &toolExecutor{r: r, conv: conv, products: products, customer: customer}
	var outcomes []toolOutcome
	var toolsUsed []string
	for _, call := range resp.ToolCalls {
		out := exec.execute(ctx, call)
		outcomes = append(outcomes, out)
		toolsUsed = append(toolsUsed, call.Name)
		r.log.Info().
			Str("conversationId", conv.ID).
			Str("tool", out.Tool).
			Bool("ok", out.OK).
			Str("outcome", out.Summary).
			Msg("tool executed")
		if exec.escalated {
			// A handoff ends automated handling; remaining calls are moot.
			break
		}
	}

	reply := strings.TrimSpace(resp.Content)
	switch {
	case exec.escalated:
		reply = escalation.TransferredReply(lang)

	case reply == "" && len(outcomes) > 0:
		// Tool-only turn: ask the model to narrate the mutated state so the
		// customer always gets a human-readable reply.
		narrated, narrUsage, err := r.narrate(ctx, client, exec.conv, products, customer, msgs, outcomes, lang)
		usage.InputTokens += narrUsage.InputTokens
		usage.OutputTokens += narrUsage.OutputTokens
		if err != nil {
			return nil, err
		}
		reply = narrated

	case reply == "":
		reply = escalation.FallbackReply(lang)
	}

	r.log.Info().
		Str("conversationId", conv.ID).
		Str("model", resp.Model).
		Strs("toolsUsed", toolsUsed).
		Int("inputTokens", usage.InputTokens).
		Int("outputTokens", usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("reply generated")

	return &RunResult{
		Reply:     reply,
		ToolsUsed: toolsUsed,
		Escalated: exec.escalated,
		Usage:     usage,
		Duration:  time.Since(start),
	}, nil
}

// narrate issues the second completion for tool-only turns, with the prompt
// rebuilt from the mutated conversation and the tool outcomes appended.
func (r *Runner) narrate(
	ctx context.Context,
	client llm.Client,
	conv *domain.Conversation,
	products []domain.Product,
	customer *domain.Customer,
	msgs []llm.Message,
	outcomes []toolOutcome,
	lang string,
) (string, llm.Usage, error) {
	system := BuildSystemPrompt(PromptContext{
		Business:     r.business,
		Products:     products,
		Conversation: conv,
		Customer:     customer,
	})

	req := llm.CompletionRequest{
		Model:       r.cfg.Model,
		System:      system,
		Messages:    append(msgs, llm.Message{Role: llm.RoleUser, Content: formatOutcomes(outcomes)}),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("narration completion: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		reply = escalation.FallbackReply(lang)
	}
	return reply, resp.Usage, nil
}

// historyMessages maps stored messages onto completion roles, appending the
// inbound text when it is not already the trailing customer message.
func historyMessages(history []domain.Message, text string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.RoleAssistant
		if m.Sender == domain.SenderCustomer {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Body})
	}
	if n := len(msgs); n == 0 || msgs[n-1].Role != llm.RoleUser || msgs[n-1].Content != text {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: text})
	}
	return msgs
}

// formatOutcomes renders tool results for the narration pass.
func formatOutcomes(outcomes []toolOutcome) string {
	var b strings.Builder
	b.WriteString("Tool execution results:\n")
	for _, out := range outcomes {
		b.WriteString(out.render())
		b.WriteString("\n")
	}
	b.WriteString("\nWrite a short reply to the customer describing the outcome. ")
	b.WriteString("If a result has ok=false, do not claim success; explain or ask for what is missing.")
	return b.String()
}
