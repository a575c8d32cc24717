package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tiendi/tiendi/internal/config"
	"github.com/tiendi/tiendi/internal/domain"
	"github.com/tiendi/tiendi/internal/store"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the product catalog",
	}

	cmd.AddCommand(newCatalogImportCmd())
	cmd.AddCommand(newCatalogListCmd())
	return cmd
}

// catalogFile is the YAML shape accepted by catalog import.
type catalogFile struct {
	Products []struct {
		ID          string  `yaml:"id"`
		Name        string  `yaml:"name"`
		Description string  `yaml:"description"`
		Price       float64 `yaml:"price"`
		Available   *bool   `yaml:"available"`
		Variants    []struct {
			ID        string  `yaml:"id"`
			Price     float64 `yaml:"price"`
			Stock     int     `yaml:"stock"`
			Available *bool   `yaml:"available"`
			Options   []struct {
				Name  string `yaml:"name"`
				Value string `yaml:"value"`
			} `yaml:"options"`
		} `yaml:"variants"`
	} `yaml:"products"`
}

// loadCatalogFile parses a product YAML file. Availability defaults to
// true so seed files only mark exceptions.
func loadCatalogFile(path, businessID string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}

	products := make([]domain.Product, 0, len(file.Products))
	for _, p := range file.Products {
		if p.Name == "" {
			return nil, fmt.Errorf("product %q has no name", p.ID)
		}
		prod := domain.Product{
			ID:          p.ID,
			BusinessID:  businessID,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Available:   p.Available == nil || *p.Available,
		}
		for _, v := range p.Variants {
			variant := domain.Variant{
				ID:        v.ID,
				ProductID: p.ID,
				Price:     v.Price,
				Stock:     v.Stock,
				Available: v.Available == nil || *v.Available,
			}
			for _, o := range v.Options {
				variant.Options = append(variant.Options, domain.Option{Name: o.Name, Value: o.Value})
			}
			prod.Variants = append(prod.Variants, variant)
		}
		products = append(products, prod)
	}
	return products, nil
}

func newCatalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import products from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			business := businessFromConfig(cfg.Business)

			products, err := loadCatalogFile(args[0], business.ID)
			if err != nil {
				return err
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			db, err := store.Open(paths.DatabasePath(cfg.Storage), log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			catalogStore := store.NewCatalogStore(db)
			for _, p := range products {
				if err := catalogStore.Upsert(cmd.Context(), p); err != nil {
					return fmt.Errorf("importing %q: %w", p.Name, err)
				}
			}
			fmt.Printf("Imported %d product(s)\n", len(products))
			return nil
		},
	}
}

func newCatalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			business := businessFromConfig(cfg.Business)

			db, err := store.Open(paths.DatabasePath(cfg.Storage), log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			products, err := store.NewCatalogStore(db).Products(cmd.Context(), business.ID)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				fmt.Println("No products. Use 'tiendi catalog import' to add some.")
				return nil
			}

			for _, p := range products {
				fmt.Printf("%-12s %-24s $%.2f\n", p.ID, p.Name, p.Price)
				for _, v := range p.AvailableVariants() {
					fmt.Printf("  %-10s %-24s $%.2f (stock %d)\n", v.ID, v.Label(), v.Price, v.Stock)
				}
			}
			return nil
		},
	}
}
