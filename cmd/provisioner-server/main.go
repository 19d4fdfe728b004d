package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	server "github.com/kazz187/provisioner/internal"
	"github.com/kazz187/provisioner/internal/config"
	"github.com/kazz187/provisioner/internal/metrics"
	"github.com/kazz187/provisioner/internal/project"
	"github.com/kazz187/provisioner/pkg/clog"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	if env.APIKey == "" {
		slog.Error("PROVISIONER_API_KEY is required to serve")
		os.Exit(1)
	}

	m := metrics.New()

	// Setup platform clients
	gh, err := env.NewGitHubClient(m)
	if err != nil {
		slog.Error("failed to create github client", "error", err)
		os.Exit(1)
	}
	sq, err := env.NewSonarQubeClient(m)
	if err != nil {
		slog.Error("failed to create sonarqube client", "error", err)
		os.Exit(1)
	}

	repo, err := env.NewRepository(context.Background())
	if err != nil {
		slog.Error("failed to create outcome storage", "error", err)
		os.Exit(1)
	}

	provisioner := project.NewProvisioner(gh, sq,
		project.WithSecretNames(env.SecretNames()),
		project.WithRecorder(m),
		project.WithRepository(repo),
	)
	service := project.NewService(provisioner, project.NewCoordinator(env.BatchConcurrency), env.Defaults())
	srv := server.NewServer(env, project.NewServer(service), m)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Running sagas observe the cancelled base context between steps and
	// compensate; give them time to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*env.RequestTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
