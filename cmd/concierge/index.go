package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/catalog"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/repository"
	"github.com/voldermortik/blue-horizon-ai-concierge/internal/service"
)

func newIndexCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed and store the hotel knowledge documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if path == "" {
				path = cfg.Retrieval.KnowledgePath
			}
			docs, err := catalog.LoadKnowledge(path)
			if err != nil {
				return err
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context(), cfg.OpenAI.EmbeddingDimensions); err != nil {
				return err
			}

			var embedder service.Embedder
			if client := service.NewOpenAIClient(&cfg.OpenAI, logger); client.IsEnabled() {
				embedder = client
			} else {
				logger.Warn("OpenAI is disabled; documents are stored without embeddings")
			}

			stored, failures, err := service.IndexDocuments(cmd.Context(), embedder, repository.NewKnowledgeRepository(store), docs, cfg.OpenAI.BatchSize, logger)
			if err != nil {
				return err
			}
			for _, f := range failures {
				logger.Warn("document not indexed", zap.String("reason", f))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d of %d documents from %s\n", stored, len(docs), path)
			if len(failures) > 0 {
				return fmt.Errorf("%d documents failed", len(failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "knowledge YAML file (defaults to KNOWLEDGE_PATH)")
	return cmd
}
