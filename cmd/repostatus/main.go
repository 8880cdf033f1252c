// Package main is the entry point for the repostatus inspection CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/repostatus/internal/backend"
	"github.com/dshills/repostatus/internal/notify"
	"github.com/dshills/repostatus/internal/session"
	"github.com/dshills/repostatus/internal/watch"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "repostatus",
		Short:   "Stream version-control status changes for a working directory",
		Version: fmt.Sprintf("%s (%s)", version, commit),
	}

	watchCmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a working directory and print cache change events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), args[0], cfg)
		},
	}
	watchCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")

	root.AddCommand(watchCmd)
	return root
}

func runWatch(ctx context.Context, dir string, cfg *Config) error {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)

	client, err := backend.StartCommand(ctx, cfg.Backend.Command, append(cfg.Backend.Args, dir)...)
	if err != nil {
		return fmt.Errorf("start backend: %w", err)
	}
	defer client.Close()

	sess, err := session.New(dir, client,
		session.WithLogger(logger),
		session.WithDebounce(time.Duration(cfg.DebounceMs)*time.Millisecond),
		session.WithThreshold(cfg.FullRefreshThreshold),
		session.WithRevisionCapacities(cfg.RevisionChangesCapacity, cfg.RevisionContentsCapacity),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer sess.Destroy()

	sess.Consume(client.Notifications())

	n := sess.Notifier()
	n.StatusChanged.Subscribe(func(e notify.PathStatusEvent) {
		fmt.Printf("status  %-10s %s\n", e.Status, e.Path)
	})
	n.BookmarkChanged.Subscribe(func(name string) {
		fmt.Printf("bookmark %s\n", name)
	})
	n.ConflictChanged.Subscribe(func(state bool) {
		fmt.Printf("conflict %v\n", state)
	})
	n.ShortHeadChanged.Subscribe(func(head string) {
		fmt.Printf("head    %s\n", head)
	})

	if cfg.WatchFilesystem {
		w, err := watch.New(dir, logger.WithField("component", "watch"))
		if err != nil {
			return fmt.Errorf("watch filesystem: %w", err)
		}
		defer w.Close()
		go func() {
			for paths := range w.Events() {
				sess.NotifyFilesChanged(paths)
			}
		}()
	}

	sess.RefreshStatus()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signals:
	case <-ctx.Done():
	}
	return nil
}
