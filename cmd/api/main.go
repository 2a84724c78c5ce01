package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/IsakPetersson/Orient/internal/api"
	"github.com/IsakPetersson/Orient/internal/config"
	"github.com/IsakPetersson/Orient/internal/service"
	"github.com/IsakPetersson/Orient/internal/sie"
	"github.com/IsakPetersson/Orient/internal/store"
	"github.com/IsakPetersson/Orient/internal/swish"
	"github.com/IsakPetersson/Orient/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	v, err := vault.New(cfg.PlatformKey())
	if err != nil {
		slog.Error("vault initialization failed", "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		slog.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	payments := service.NewPayments(st, swish.NewClient(), v, cfg)
	handler := api.NewHandler(st, payments, sie.DefaultMapping())
	router := api.NewRouter(handler)

	slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
