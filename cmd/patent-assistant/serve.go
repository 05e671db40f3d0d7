package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joelkehle/patent-assistant/internal/assistant"
	"github.com/joelkehle/patent-assistant/internal/llm"
	"github.com/joelkehle/patent-assistant/internal/render"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the question-answering HTTP front end",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	models, err := llm.NewRegistry(cfg.ModelSpecs(), nil)
	if err != nil {
		return err
	}
	searcher, closeSearcher, err := a.openSearcher(ctx)
	if err != nil {
		return err
	}
	defer closeSearcher()

	store := assistant.NewSessionStore()
	if cfg.Assistant.StatePath != "" {
		n, err := store.LoadFile(cfg.Assistant.StatePath)
		if err != nil {
			return err
		}
		a.logger.Info("sessions_restored", zap.Int("sessions", n), zap.String("path", cfg.Assistant.StatePath))
	}

	indexes := make([]assistant.IndexOption, 0, len(cfg.Assistant.Indexes))
	for _, idx := range cfg.Assistant.Indexes {
		indexes = append(indexes, assistant.IndexOption{Name: idx.Name, ID: idx.ID})
	}
	handler, err := assistant.NewServer(assistant.Options{
		Models:      models,
		Searcher:    searcher,
		Indexes:     indexes,
		KPerKeyword: cfg.Assistant.KPerKeyword,
		Store:       store,
		PDFRenderer: render.NewChromiumPDFRenderer(cfg.Assistant.StyleDir),
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info("assistant_listening",
		zap.String("addr", cfg.Assistant.Addr),
		zap.Strings("models", models.Names()),
		zap.Int("indexes", len(indexes)),
	)
	srv := &http.Server{Addr: cfg.Assistant.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if cfg.Assistant.StatePath != "" {
		if err := store.SaveFile(cfg.Assistant.StatePath); err != nil {
			a.logger.Error("sessions_save_failed", zap.Error(err))
		}
	}
	return nil
}
