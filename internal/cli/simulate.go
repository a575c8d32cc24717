package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tiendi/tiendi/internal/agent"
	"github.com/tiendi/tiendi/internal/channel"
	"github.com/tiendi/tiendi/internal/checkout"
	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/gateway"
	"github.com/tiendi/tiendi/internal/llm"
	"github.com/tiendi/tiendi/internal/processing"
	"github.com/tiendi/tiendi/internal/routing"
	"github.com/tiendi/tiendi/internal/store"
)

// consoleGateway prints agent replies to stdout instead of a messaging
// platform. Quick replies degrade to numbered text like on WhatsApp.
type consoleGateway struct {
	out *os.File
}

func (g *consoleGateway) ID() domain.ChannelType { return domain.ChannelWhatsApp }

func (g *consoleGateway) Capabilities() channel.Capabilities {
	return channel.Capabilities{}
}

func (g *consoleGateway) Send(ctx context.Context, req channel.SendRequest) (*channel.SendResult, error) {
	fmt.Fprintf(g.out, "agent> %s\n", req.Content.Text)
	return &channel.SendResult{SentText: req.Content.Text}, nil
}

func newSimulateCmd() *cobra.Command {
	var (
		catalogFile string
		sender      string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Chat with the agent on the console",
		Long:  "Runs the full message pipeline against an in-memory database, with replies printed to the console instead of a messaging platform.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cfg.Business.Name == "" {
				cfg.Business.Name = "Demo Shop"
			}

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			if len(registry.List()) == 0 {
				return fmt.Errorf("no LLM providers configured, set an API key first")
			}

			db, err := store.Open(":memory:", log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			convs := store.NewConversationStore(db)
			catalogStore := store.NewCatalogStore(db)
			customers := store.NewCustomerStore(db)
			orders := store.NewOrderStore(db)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			business := businessFromConfig(cfg.Business)
			if catalogFile != "" {
				products, err := loadCatalogFile(catalogFile, business.ID)
				if err != nil {
					return err
				}
				for _, p := range products {
					if err := catalogStore.Upsert(ctx, p); err != nil {
						return fmt.Errorf("seeding catalog: %w", err)
					}
				}
				fmt.Printf("Loaded %d product(s) from %s\n", len(products), catalogFile)
			}

			runner := agent.NewRunner(
				agent.RunnerConfig{
					Model:         cfg.Agent.Model,
					MaxTokens:     cfg.Agent.MaxTokens,
					Temperature:   cfg.Agent.Temperature,
					HistoryWindow: cfg.Agent.HistoryWindow,
				},
				business,
				registry, convs, catalogStore, customers,
				checkout.New(orders, nil, log),
				log,
			)

			channels := channel.NewRegistry(log)
			channels.Register(&consoleGateway{out: os.Stdout})
			dispatcher := channel.NewDispatcher(channels, convs, log)

			hub := gateway.NewEventHub(log)
			guard := processing.NewGuard(convs, hub, log)
			router := routing.NewRouter(convs, runner, guard, dispatcher,
				routing.RetryPolicy{MaxAttempts: 1}, log)

			fmt.Printf("Chatting with %s. Ctrl-D to quit.\n", business.Name)
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("you> ")
			for scanner.Scan() {
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					fmt.Print("you> ")
					continue
				}
				if _, err := router.Ingest(ctx, business.ID, domain.ChannelWhatsApp, sender, text, ""); err != nil {
					fmt.Printf("error: %v\n", err)
				}
				fmt.Print("you> ")
			}
			fmt.Println()
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&catalogFile, "catalog", "", "seed products from a YAML file")
	cmd.Flags().StringVar(&sender, "sender", "console-user", "simulated sender id")

	return cmd
}
