package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ButyrinIA/blogsync/internal/config"
	"github.com/ButyrinIA/blogsync/internal/logging"
	"github.com/ButyrinIA/blogsync/internal/server"
	"github.com/ButyrinIA/blogsync/internal/storage"
	"github.com/ButyrinIA/blogsync/internal/storage/memory"
	"github.com/ButyrinIA/blogsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "путь к файлу конфигурации")
	storageType := flag.String("storage", "", "тип хранилища: memory или postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Не удалось загрузить конфигурацию", "error", err)
		os.Exit(1)
	}
	if *storageType != "" {
		cfg.Server.Storage = *storageType
	}
	logger := logging.New(cfg.Log, os.Stderr)

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("Invalid server configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Storage
	switch cfg.Server.Storage {
	case "postgres":
		logger.Info("Инициализация хранилища PostgreSQL")
		store, err = postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Error("Не удалось инициализировать PostgreSQL", "error", err)
			os.Exit(1)
		}
	default:
		logger.Info("Инициализация хранилища Memory")
		store = memory.New()
	}
	defer store.Close()

	srv := server.New(cfg, store, logger)
	logger.Info("Запуск сервера", "port", cfg.Server.Port, "storage", cfg.Server.Storage)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Сервер остановлен с ошибкой", "error", err)
		os.Exit(1)
	}
}
