// Package main is the entry point for the dayroom voice link.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/dayroom/internal/app"
	"github.com/ent0n29/dayroom/internal/audio"
	"github.com/ent0n29/dayroom/internal/brain"
	"github.com/ent0n29/dayroom/internal/capture"
	"github.com/ent0n29/dayroom/internal/config"
	"github.com/ent0n29/dayroom/internal/observability"
	"github.com/ent0n29/dayroom/internal/playback"
)

// Set by release ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dayroom",
		Short:         "Push-to-talk voice link to the dayroom brain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file (overrides $"+config.ConfigPathEnv+")")
	root.AddCommand(versionCmd(), serveCmd(), turnCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("dayroom %s (commit: %s)\n", version, commit)
		},
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

func setupLogger(cfg config.Config) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the voice link and its HTTP/WebSocket surface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := observability.InitTracing(ctx, observability.ProviderConfig{ServiceVersion: version})
			if err != nil {
				return fmt.Errorf("tracing init failed: %w", err)
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(flushCtx)
			}()

			built, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := built.Cleanup(); err != nil {
					slog.Warn("cleanup failed", "error", err)
				}
			}()

			httpServer := &http.Server{
				Addr:              cfg.BindAddr,
				Handler:           built.API.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return built.Controller.Run(gctx)
			})
			g.Go(func() error {
				slog.Info("server listening", "addr", cfg.BindAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				slog.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					slog.Warn("graceful shutdown failed", "error", err)
					_ = httpServer.Close()
				}
				return nil
			})

			err = g.Wait()
			slog.Info("shutdown complete")
			return err
		},
	}
}

func turnCmd() *cobra.Command {
	var (
		file string
		play bool
	)
	cmd := &cobra.Command{
		Use:   "turn",
		Short: "Send one recorded utterance to the brain and print the reply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogger(cfg)

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read utterance: %w", err)
			}

			client, err := brain.NewClient(brain.Config{
				BaseURL:  cfg.BrainURL,
				TurnPath: cfg.BrainTurnPath,
				Timeout:  cfg.BrainTurnTimeout,
			}, observability.NewMetrics(cfg.MetricsNamespace))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			started := time.Now()
			reply, err := client.SendTurn(ctx, brain.TurnRequest{
				Audio: capture.Payload{Data: data, ContentType: audio.Sniff(data), Chunks: 1},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "round trip: %s\n", time.Since(started).Round(time.Millisecond))
			fmt.Fprintf(out, "user: %s\n", reply.UserText)
			fmt.Fprintf(out, "ai:   %s\n", reply.AIText)
			if reply.ComplianceScore != nil {
				fmt.Fprintf(out, "compliance: %d\n", *reply.ComplianceScore)
			} else {
				fmt.Fprintln(out, "compliance: (not reported)")
			}
			fmt.Fprintf(out, "audio: %d bytes (%s)\n", len(reply.Audio), reply.ContentType)

			if !play {
				return nil
			}
			ctrl := playback.NewController(playback.NewCommandPlayer(cfg.PlaybackCommand))
			done, err := ctrl.Play(ctx, reply.Audio, reply.ContentType)
			if err != nil {
				return err
			}
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				ctrl.Stop()
				return ctx.Err()
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Audio file to send as the utterance")
	cmd.Flags().BoolVar(&play, "play", false, "Play the reply audio")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
