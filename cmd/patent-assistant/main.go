package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/patent-assistant/internal/config"
	"github.com/joelkehle/patent-assistant/internal/docindex"
	"github.com/joelkehle/patent-assistant/internal/logging"
	"github.com/joelkehle/patent-assistant/internal/patentqa"
	"github.com/joelkehle/patent-assistant/internal/searchclient"
	"github.com/joelkehle/patent-assistant/internal/telemetry"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "patent-assistant",
	Short: "Answer questions about a patent corpus",
	Long: `patent-assistant answers natural-language questions about patents.

A question that names a patent number is answered with a structured summary
of that patent. Any other question is turned into search keywords, the
matching documents are retrieved from the index server, and an answer is
synthesized from them with source citations.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is what both subcommands share once config is loaded.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	shutdown telemetry.ShutdownFunc
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.ValidateAssistant(); err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "patent-assistant"
	}
	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: serviceName,
	}, logger)
	if err != nil {
		logger.Warn("tracing_init_failed", zap.Error(err))
	}
	return &app{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

func (a *app) close() {
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			a.logger.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// openSearcher talks to the index server when one is configured and searches
// the local index database in-process otherwise.
func (a *app) openSearcher(ctx context.Context) (patentqa.DocumentSearcher, func(), error) {
	cfg := a.cfg
	if url := strings.TrimSpace(cfg.Assistant.IndexServerURL); url != "" {
		client, err := searchclient.New(searchclient.Config{
			BaseURL:    url,
			HTTPClient: &http.Client{Timeout: cfg.SearchTimeout()},
			Logger:     a.logger,
		})
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("index_server", zap.String("url", url))
		return client, func() {}, nil
	}

	db, err := docindex.OpenDB(cfg.IndexServer.DBPath)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := docindex.NewEmbedder(ctx, docindex.EmbedderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.EmbeddingAPIKey(),
		BaseURL:  cfg.Embedding.BaseURL,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	catalog := make([]docindex.CatalogEntry, 0, len(cfg.Assistant.Indexes))
	for _, idx := range cfg.Assistant.Indexes {
		catalog = append(catalog, docindex.CatalogEntry{ID: idx.ID, Description: idx.Name})
	}
	registry, err := docindex.LoadRegistry(ctx, db, embedder, catalog, a.logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	searcher, err := docindex.NewSearcher(registry, docindex.SearcherConfig{
		Workers: cfg.IndexServer.FanoutWorkers,
		Logger:  a.logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	a.logger.Info("embedded_index", zap.String("db_path", cfg.IndexServer.DBPath))
	return searcher, func() {
		searcher.Release()
		_ = db.Close()
	}, nil
}
