package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/sakif/lineval/internal/config"
	"github.com/sakif/lineval/internal/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", os.Getenv("LINEVAL_CONFIG"), "path to the YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("init server", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(context.Background(), cfgPath); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
