// Package main is the entry point for the stagehand server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stagehand-ai/stagehand/pkg/config"
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "stagehand"
)

var configPath string

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   AppName,
		Short: "Governed execution engine for multi-agent orchestration",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server, scheduler and queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", AppName, AppVersion)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	app, err := NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.Stop(ctx)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	return config.FromEnv(), nil
}
