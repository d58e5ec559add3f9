package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gantry-ci/gantry"
	gantryhttp "github.com/gantry-ci/gantry/internal/adapters/http"
	"github.com/gantry-ci/gantry/internal/adapters/provision"
	"github.com/gantry-ci/gantry/internal/adapters/redis"
	"github.com/gantry-ci/gantry/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook trigger API",
	Long:  `Starts an HTTP server that accepts push event deliveries, runs the pipeline for matching events, and exposes run results and Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		addr, _ := cmd.Flags().GetString("addr")
		redisAddr, _ := cmd.Flags().GetString("redis")
		timeout, _ := cmd.Flags().GetDuration("stage-timeout")
		source, _ := cmd.Flags().GetString("toolchain-source")
		cache, _ := cmd.Flags().GetString("cache-dir")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if err := serve(file, addr, redisAddr, source, cache, timeout, verbose); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("redis", "", "Redis address for durable run storage (empty = in-memory)")
	serveCmd.Flags().Duration("stage-timeout", 15*time.Minute, "Budget per stage subprocess (0 disables)")
	serveCmd.Flags().String("toolchain-source", "", "Base URL for toolchain downloads used by setup stages")
	serveCmd.Flags().String("cache-dir", defaultCacheDir(), "Toolchain cache directory")
}

func serve(file, addr, redisAddr, source, cache string, timeout time.Duration, verbose bool) error {
	logger := newLogger(verbose)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	opts := []gantry.Option{
		gantry.WithLogger(logger),
		gantry.WithStageTimeout(timeout),
		gantry.WithLifecycleHooks(collector.Hooks()),
		gantry.WithProvisioner(provision.New(cache,
			provision.WithBaseURL(source),
			provision.WithLogger(logger),
		)),
	}
	if redisAddr != "" {
		store := redis.New(redisAddr, "", 0)
		defer store.Close()
		opts = append(opts, gantry.WithStore(store))
	}

	eng, err := gantry.New(file, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := gantryhttp.NewHandler(eng,
		gantryhttp.WithLogger(logger),
		gantryhttp.WithVersion(gantry.Version),
		gantryhttp.WithRunContext(ctx),
		gantryhttp.WithMetrics(registry),
	)

	server := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("gantry listening", "addr", addr, "pipeline", eng.Name)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
