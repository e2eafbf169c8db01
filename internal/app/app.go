package app

import (
	"context"
	"net/http"

	"identity-link/internal/config"
)

type App struct {
	httpServer *http.Server
	services   *Services
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	svc, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: setupHTTP(svc),
	}

	return &App{
		httpServer: server,
		services:   svc,
	}, nil
}

// Handler exposes the router, mostly for tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

func (a *App) Run() error {
	return a.httpServer.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return a.services.Close()
}
