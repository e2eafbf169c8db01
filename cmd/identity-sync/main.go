// Command identity-sync copies records between the local store and the
// directory service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"identity-link/internal/app"
	"identity-link/internal/auth/linkage"
	"identity-link/internal/config"
	"identity-link/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "identity-sync",
		Short:        "Synchronize local records with the directory service",
		SilenceUsage: true,
	}
	root.AddCommand(newPullCmd(), newPushCmd())
	return root
}

func newPullCmd() *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Create or update local records from every directory user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(svc *app.Services) error {
				l, err := svc.Linkers.Get(typeName)
				if err != nil {
					return err
				}
				synced, err := l.SyncFromRemote(cmd.Context(), nil)
				if err != nil {
					logger.Error("pull failed", map[string]any{
						"type":   typeName,
						"synced": len(synced),
						"error":  err.Error(),
					})
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "local record type")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newPushCmd() *cobra.Command {
	var (
		typeName string
		recreate bool
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Create directory users for local records that have none",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(svc *app.Services) error {
				l, err := svc.Linkers.Get(typeName)
				if err != nil {
					return err
				}
				var opts []linkage.SyncOption
				if recreate {
					opts = append(opts, linkage.WithRecreate())
				}
				n, err := l.SyncToRemote(cmd.Context(), opts...)
				if err != nil {
					logger.Error("push failed", map[string]any{
						"type":   typeName,
						"pushed": n,
						"error":  err.Error(),
					})
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "local record type")
	cmd.Flags().BoolVar(&recreate, "recreate", false, "create directory users even for records already linked")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func withServices(ctx context.Context, run func(svc *app.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Error("failed to load config", map[string]any{"error": err.Error()})
		return err
	}
	logger.Init(cfg.LogLevel)

	svc, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize", map[string]any{"error": err.Error()})
		return err
	}
	defer func() { _ = svc.Close() }()

	return run(svc)
}
