package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"medroom/internal/app"
	"medroom/internal/config"
	"medroom/internal/database"
	dbconfig "medroom/pkg/database"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "medroom",
		Short:        "Live patient/doctor consultation rooms",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(), auditCmd(), versionCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the consultation server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("MEDROOM_CONFIG_FILE"), "path to a JSON config file")
	return cmd
}

// runServer starts the application and blocks until SIGINT/SIGTERM
func runServer(configPath string) error {
	cfg := config.LoadConfigWithPrecedence(configPath)
	logger := app.NewLogger(cfg.Log, os.Stdout)

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	logger.Info().Str("version", version).Str("addr", application.Addr()).Msg("serving")

	<-ctx.Done()
	logger.Info().Msg("signal received, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return application.Stop(shutdownCtx)
}

// auditCmd prints the audited transcript of one room as JSON
func auditCmd() *cobra.Command {
	var (
		configPath string
		roomID     string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the audit trail of a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfigWithPrecedence(configPath)
			if cfg.Audit.Path == "" {
				return fmt.Errorf("audit trail is disabled (empty audit path)")
			}

			audit, err := database.NewAuditLog(dbconfig.DefaultConfig(cfg.Audit.Path), zerolog.Nop())
			if err != nil {
				return err
			}
			defer func() { _ = audit.Close() }()

			ctx := cmd.Context()
			events, err := audit.InvitationEvents(ctx, roomID)
			if err != nil {
				return err
			}
			messages, err := audit.RoomMessages(ctx, roomID)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(map[string]interface{}{
				"roomId":      roomID,
				"invitations": events,
				"messages":    messages,
			})
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("MEDROOM_CONFIG_FILE"), "path to a JSON config file")
	cmd.Flags().StringVar(&roomID, "room", "", "room id to print")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "medroom %s\n", version)
		},
	}
}
