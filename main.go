package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/config"
	"go.aimuz.me/voicebridge/internal/app"
	"go.aimuz.me/voicebridge/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:           "voicebridge",
		Short:         "Voice-to-voice translation service",
		Long:          "Listens to the microphone, recognizes speech, translates it and speaks the translation.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "config file (default: user config dir)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newTranslateCmd())
	rootCmd.AddCommand(newSetupCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// load reads configuration and installs the configured logger.
func load(cmd *cobra.Command) (*config.Config, io.Closer, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	return cfg, closer, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the UI action API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := load(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address, overrides server.addr")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	svc, err := app.Build(cfg, version)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("close service", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.NewHandler(svc).Router(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List microphones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := load(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			mic := audiocapture.NewCommandMicrophone(cfg.Audio.Recorder, app.MicrophoneConfig(cfg))
			devices, err := mic.Devices(cmd.Context())
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				return audiocapture.ErrNoDevice
			}
			for _, d := range devices {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

func newTranslateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate text once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := load(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			if from == "" {
				from = cfg.Language.DefaultSource
			}
			if to == "" {
				to = cfg.Language.DefaultTarget
			}

			translator, err := app.Translator(cfg)
			if err != nil {
				return err
			}
			out, err := translator.Translate(cmd.Context(), strings.Join(args, " "), from, to)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().String("from", "", "source language code, \"auto\" to detect")
	cmd.Flags().String("to", "", "target language code")
	return cmd
}

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the local whisper model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := load(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			w, err := app.WhisperLocal(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if w.SetupProgress() == 100 {
				fmt.Fprintf(out, "model already present: %s\n", w.ModelPath())
				return nil
			}
			last := -1
			err = w.Setup(cmd.Context(), func(percent int) {
				if percent != last {
					last = percent
					fmt.Fprintf(out, "\rdownloading %s: %3d%%", w.ModelPath(), percent)
				}
			})
			fmt.Fprintln(out)
			if err != nil {
				if p := w.SetupProgress(); p > 0 {
					return fmt.Errorf("setup stopped at %d%%: %w", p, err)
				}
				return err
			}
			if !w.HasBinary() {
				slog.Warn("model ready but whisper.cpp binary not found in PATH")
			}
			return nil
		},
	}
}
