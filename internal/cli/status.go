package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/llm"
	"github.com/tiendi/tiendi/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Tiendi status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Tiendi %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Logs:     %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Printf("Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Printf("Business: %s\n", orUnset(cfg.Business.Name))
			fmt.Printf("Server:   port=%d bind=%s tls=%v\n",
				cfg.Server.Port, cfg.Server.Bind, cfg.Server.TLS.Enabled)
			fmt.Printf("Storage:  driver=%s path=%s\n",
				cfg.Storage.Driver, paths.DatabasePath(cfg.Storage))

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			providers := registry.List()
			if len(providers) > 0 {
				fmt.Printf("LLM:      %s\n", strings.Join(providers, ", "))
			} else {
				fmt.Println("LLM:      (none configured)")
			}

			var channels []string
			if cfg.Channels.WhatsApp != nil {
				channels = append(channels, "whatsapp")
			}
			if cfg.Channels.Messenger != nil {
				channels = append(channels, "messenger")
			}
			if cfg.Channels.Instagram != nil {
				channels = append(channels, "instagram")
			}
			if len(channels) > 0 {
				fmt.Printf("Channels: %s\n", strings.Join(channels, ", "))
			} else {
				fmt.Println("Channels: (none configured)")
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Println()
				fmt.Printf("%d validation issue(s):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  %s\n", issue)
				}
			}

			return nil
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
