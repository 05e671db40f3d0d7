package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/patent-assistant/internal/config"
	"github.com/joelkehle/patent-assistant/internal/docindex"
	"github.com/joelkehle/patent-assistant/internal/logging"
	"github.com/joelkehle/patent-assistant/internal/telemetry"
)

var (
	configPath string
	verbose    bool

	ingestIndex        string
	ingestDescription  string
	ingestChunkSize    int
	ingestChunkOverlap int
	ingestExtensions   []string
)

var rootCmd = &cobra.Command{
	Use:          "index-server",
	Short:        "Keyword search service over embedded patent indexes",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load the configured indexes and serve keyword search over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Chunk, embed and store every text file under dir into an index",
	Long: `Walks dir, splits each matching file into overlapping chunks, embeds
them and appends them to the named index. The index is created on first use.

Example:
  index-server ingest --index 3d_dram --description "3D DRAM patents" ./corpus/3d_dram`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexes stored in the database",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	ingestCmd.Flags().StringVar(&ingestIndex, "index", "", "Index id to write into (required)")
	ingestCmd.Flags().StringVar(&ingestDescription, "description", "", "Human-readable index description")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 1000, "Chunk size in characters")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", 100, "Overlap between chunks in characters")
	ingestCmd.Flags().StringSliceVar(&ingestExtensions, "ext", []string{".txt"}, "File extensions to ingest")
	_ = ingestCmd.MarkFlagRequired("index")

	rootCmd.AddCommand(serveCmd, ingestCmd, listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.ValidateIndexServer(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func embedderConfig(cfg *config.Config) docindex.EmbedderConfig {
	return docindex.EmbedderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.EmbeddingAPIKey(),
		BaseURL:  cfg.Embedding.BaseURL,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "index-server"
	}
	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: serviceName,
	}, logger)
	if err != nil {
		logger.Warn("tracing_init_failed", zap.Error(err))
	}
	defer func() { _ = shutdown(context.Background()) }()

	db, err := docindex.OpenDB(cfg.IndexServer.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	embedder, err := docindex.NewEmbedder(ctx, embedderConfig(cfg))
	if err != nil {
		return err
	}
	catalog := make([]docindex.CatalogEntry, 0, len(cfg.IndexServer.Indexes))
	for _, idx := range cfg.IndexServer.Indexes {
		catalog = append(catalog, docindex.CatalogEntry{ID: idx.ID, Description: idx.Description})
	}
	registry, err := docindex.LoadRegistry(ctx, db, embedder, catalog, logger)
	if err != nil {
		return err
	}
	searcher, err := docindex.NewSearcher(registry, docindex.SearcherConfig{
		Workers: cfg.IndexServer.FanoutWorkers,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer searcher.Release()

	loaded := registry.Indexes()
	ids := make([]string, 0, len(loaded))
	for _, info := range loaded {
		ids = append(ids, info.ID)
	}
	logger.Info("index_server_listening",
		zap.String("addr", cfg.IndexServer.Addr),
		zap.Strings("indexes", ids),
	)
	srv := &http.Server{
		Addr:              cfg.IndexServer.Addr,
		Handler:           docindex.NewServer(registry, searcher, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	id := strings.TrimSpace(ingestIndex)
	if id == "" {
		return errors.New("--index is required")
	}
	db, err := docindex.OpenDB(cfg.IndexServer.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	embedder, err := docindex.NewEmbedder(ctx, embedderConfig(cfg))
	if err != nil {
		return err
	}
	description := ingestDescription
	if description == "" {
		description = id
	}
	store, err := docindex.CreateStore(ctx, db, id, description, cfg.Embedding.Model, embedder)
	if err != nil {
		return err
	}

	started := time.Now()
	report, err := docindex.Ingest(ctx, store, args[0], docindex.IngestOptions{
		ChunkSize:    ingestChunkSize,
		ChunkOverlap: ingestChunkOverlap,
		Extensions:   ingestExtensions,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	color.Green("Ingested %d files (%d chunks) into %s in %s", report.Files, report.Chunks, id, time.Since(started).Round(time.Millisecond))
	fmt.Printf("index %s now holds %d chunks\n", id, store.Len())
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := docindex.OpenDB(cfg.IndexServer.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	indexes, err := db.ListIndexes(cmd.Context())
	if err != nil {
		return err
	}
	if len(indexes) == 0 {
		color.Yellow("no indexes in %s", cfg.IndexServer.DBPath)
		return nil
	}
	bold := color.New(color.Bold)
	for _, info := range indexes {
		bold.Printf("%s", info.ID)
		fmt.Printf("  %d chunks  model=%s  %s\n", info.Documents, info.EmbeddingModel, info.Description)
	}
	return nil
}
