package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/model"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/service"
)

func newMigrateCmd() *cobra.Command {
	var seedDays int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create tables and optionally open room inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context(), cfg.OpenAI.EmbeddingDimensions); err != nil {
				return err
			}
			logger.Info("schema is up to date")

			if seedDays <= 0 {
				return nil
			}
			c, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			engine := service.NewReservationEngine(store, c, service.NewPricer(c), cfg.Booking, service.SystemClock, logger)
			today := model.Day(time.Now())
			dates := model.NewDateRange(today, today.AddDate(0, 0, seedDays))
			created, err := engine.SeedInventory(cmd.Context(), dates)
			if err != nil {
				return err
			}
			logger.Info("inventory seeded", zap.String("dates", dates.String()), zap.Int("rows", created))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d inventory rows for %s\n", created, dates)
			return nil
		},
	}

	cmd.Flags().IntVar(&seedDays, "seed-days", 0, "open every room type for this many nights from today")
	return cmd
}
