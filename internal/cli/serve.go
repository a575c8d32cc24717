package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiendi/tiendi/internal/agent"
	"github.com/tiendi/tiendi/internal/channel"
	"github.com/tiendi/tiendi/internal/checkout"
	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/gateway"
	"github.com/tiendi/tiendi/internal/hooks"
	"github.com/tiendi/tiendi/internal/llm"
	"github.com/tiendi/tiendi/internal/logging"
	"github.com/tiendi/tiendi/internal/processing"
	"github.com/tiendi/tiendi/internal/routing"
	"github.com/tiendi/tiendi/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			// The pre-run logger only knows the --log-level flag; rebuild
			// from the config's logging section now that it is loaded.
			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			if level == "" {
				level = "info"
			}
			srvLog, err := logging.NewFromOptions(logging.Options{
				Level:        level,
				ConsoleLevel: cfg.Logging.ConsoleLevel,
				ConsoleStyle: cfg.Logging.ConsoleStyle,
				FilePath:     cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			log = srvLog

			dbPath := paths.DatabasePath(cfg.Storage)
			if cfg.Storage.Driver == "memory" {
				dbPath = ":memory:"
			}
			db, err := store.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", dbPath).Msg("database open")

			convs := store.NewConversationStore(db)
			catalogStore := store.NewCatalogStore(db)
			customers := store.NewCustomerStore(db)
			orders := store.NewOrderStore(db)

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			providers := registry.List()
			if len(providers) == 0 {
				return fmt.Errorf("no LLM providers configured")
			}
			log.Info().Strs("providers", providers).Msg("LLM providers available")

			hookMgr := hooks.NewManager(log)

			orchestrator := checkout.New(orders, nil, log)
			orchestrator.SetHooks(hookMgr)

			runner := agent.NewRunner(
				agent.RunnerConfig{
					Model:         cfg.Agent.Model,
					MaxTokens:     cfg.Agent.MaxTokens,
					Temperature:   cfg.Agent.Temperature,
					HistoryWindow: cfg.Agent.HistoryWindow,
				},
				businessFromConfig(cfg.Business),
				registry,
				convs,
				catalogStore,
				customers,
				orchestrator,
				log,
			)

			channels := channel.NewRegistry(log)
			if wa := cfg.Channels.WhatsApp; wa != nil {
				channels.Register(channel.NewWhatsAppGateway(wa.AccessToken, wa.PhoneNumberID))
			}
			if fb := cfg.Channels.Messenger; fb != nil {
				channels.Register(channel.NewMessengerGateway(fb.PageAccessToken))
			}
			if ig := cfg.Channels.Instagram; ig != nil {
				channels.Register(channel.NewInstagramGateway(ig.PageAccessToken))
			}
			if channels.Count() == 0 {
				log.Warn().Msg("no channels configured, webhooks will 404")
			}
			dispatcher := channel.NewDispatcher(channels, convs, log)

			hub := gateway.NewEventHub(log)
			guard := processing.NewGuard(convs, hub, log)
			guard.Tune(
				time.Duration(cfg.Processing.StaleSeconds)*time.Second,
				time.Duration(cfg.Processing.SweepSeconds)*time.Second,
			)

			router := routing.NewRouter(convs, runner, guard, dispatcher,
				routing.RetryPolicy{
					MaxAttempts: cfg.Retry.MaxAttempts,
					Delay:       time.Duration(cfg.Retry.DelaySeconds) * time.Second,
					Jitter:      time.Duration(cfg.Retry.JitterSeconds) * time.Second,
				}, log)
			router.SetHooks(hookMgr)

			// Operator dashboards see pipeline events over the websocket
			// stream.
			hookMgr.On(hooks.EventOrderCreated, "operator-stream", func(ctx context.Context, p hooks.Payload) error {
				hub.Broadcast(gateway.EventOrderCreated, p.Data)
				return nil
			})
			hookMgr.On(hooks.EventEscalated, "operator-stream", func(ctx context.Context, p hooks.Payload) error {
				hub.Broadcast(gateway.EventEscalated, p.Data)
				return nil
			})
			hookMgr.On(hooks.EventMessageReceived, "operator-stream", func(ctx context.Context, p hooks.Payload) error {
				hub.Broadcast(gateway.EventMessage, p.Data)
				return nil
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go guard.Run(ctx)

			srv := gateway.New(cfg, router, log,
				gateway.WithEventHub(hub), gateway.WithHooks(hookMgr),
				gateway.WithConversations(convs))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}

// businessFromConfig fills the business identity the agent sells for. The
// ID defaults so single-tenant deployments need no explicit value.
func businessFromConfig(cfg config.BusinessConfig) domain.Business {
	id := cfg.ID
	if id == "" {
		id = "default"
	}
	return domain.Business{
		ID:       id,
		Name:     cfg.Name,
		Address:  cfg.Address,
		Phone:    cfg.Phone,
		Hours:    cfg.Hours,
		Currency: cfg.Currency,
	}
}
