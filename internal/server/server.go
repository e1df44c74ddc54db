// Package server wires the pieces together and runs the HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/lineval/internal/auth"
	"github.com/sakif/lineval/internal/config"
	"github.com/sakif/lineval/internal/engine"
	"github.com/sakif/lineval/internal/executor"
	"github.com/sakif/lineval/internal/handler"
	"github.com/sakif/lineval/internal/isolate"
	"github.com/sakif/lineval/internal/middleware"
	"github.com/sakif/lineval/internal/repository/sqlite"
	"github.com/sakif/lineval/internal/service"
)

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	evaluator executor.Evaluator
	// eng is set only for the in-process tier; it receives live config
	// updates.
	eng  *engine.Engine
	http *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Server{cfg: cfg, logger: logger, db: db}
	if cfg.Isolated {
		s.evaluator = isolate.NewProxy(isolate.ProxyConfig{
			Bin:         cfg.WorkerBinary,
			MaxSessions: cfg.Engine.MaxContexts,
			Logger:      logger,
		})
		logger.Info("using worker-process evaluator", "bin", cfg.WorkerBinary)
	} else {
		s.eng = engine.New(engineOptions(cfg), logger)
		s.evaluator = s.eng
	}

	svc := service.NewEvalService(s.evaluator, sqlite.NewEvaluationRepository(db), logger)
	h := handler.NewEvalHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			tokens := auth.NewTokenService(cfg.JWTSecret, 24*time.Hour)
			r.Use(auth.RequireAuth(tokens))
		} else {
			logger.Warn("no JWT secret configured; API is unauthenticated")
		}

		r.Post("/evaluate", h.HandleEvaluate)
		r.Route("/contexts/{id}", func(r chi.Router) {
			r.Post("/reset", h.HandleReset)
			r.Delete("/", h.HandleDispose)
			r.Get("/console", h.HandleConsole)
			r.Get("/history", h.HandleHistory)
		})
	})

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

// Start serves until the context is canceled or a termination signal
// arrives, then shuts down gracefully: HTTP drains, the evaluator closes,
// the store closes. cfgPath enables live reload of the engine tunables and
// may be empty.
func (s *Server) Start(ctx context.Context, cfgPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfgPath != "" && s.eng != nil {
		go func() {
			err := config.Watch(ctx, cfgPath, s.logger, func(cfg config.Config) {
				s.eng.SetLimits(engineOptions(cfg))
			})
			if err != nil {
				s.logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown", "error", err)
	}
	if err := s.evaluator.Close(); err != nil {
		s.logger.Error("evaluator shutdown", "error", err)
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("store shutdown", "error", err)
	}
	s.logger.Info("stopped")
	return nil
}

func engineOptions(cfg config.Config) engine.Options {
	return engine.Options{
		DefaultTimeout:  cfg.Engine.DefaultTimeout(),
		MaxContexts:     cfg.Engine.MaxContexts,
		MaxRenderLength: cfg.Engine.MaxRenderLength,
	}
}
