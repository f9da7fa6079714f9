// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// txpoold runs a standalone transaction pool service with a prometheus
// metrics endpoint, backed by an in-memory chain state. It exists for
// development networks and load testing; production nodes embed the pool.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/geth/metrics"
	"github.com/luxfi/geth/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/luxfi/txpool/core/state"
	"github.com/luxfi/txpool/core/txpool"
	poolmetrics "github.com/luxfi/txpool/metrics/prometheus"
)

const clientIdentifier = "txpoold"

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a JSON pool configuration file",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Logging verbosity (trace, debug, info, warn, error)",
		Value: "info",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Rotated log file path (stderr if empty)",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "Listen address of the prometheus endpoint",
		Value: "127.0.0.1:6060",
	}

	app = &cli.App{
		Name:    clientIdentifier,
		Usage:   "Standalone transaction pool daemon",
		Version: "1.0.0",
		Flags:   []cli.Flag{configFlag, logLevelFlag, logFileFlag, metricsAddrFlag},
		Action:  run,
	}
)

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	metrics.Enable()

	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, parseLevel(ctx.String(logLevelFlag.Name)), false))
	if path := ctx.String(logFileFlag.Name); path != "" {
		rotated := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
		logger = log.NewLogger(log.JSONHandler(rotated))
	}

	config, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	chain := state.NewChainState()
	pool, err := txpool.New(config, txpool.AtomicViewFunc(func() (txpool.PersistentStorage, error) {
		return chain.LatestView()
	}), nil, logger)
	if err != nil {
		return err
	}
	service, err := txpool.NewService(pool, nil, logger)
	if err != nil {
		return err
	}
	defer service.Close()

	gatherer := poolmetrics.NewGatherer(metrics.DefaultRegistry)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              ctx.String(metricsAddrFlag.Name),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", "err", err)
		}
	}()
	defer server.Close()

	logger.Info("Transaction pool daemon started",
		"max_gas", config.PoolLimits.MaxGas,
		"max_txs", config.PoolLimits.MaxTxs,
		"metrics", ctx.String(metricsAddrFlag.Name),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")
	return nil
}

func parseLevel(name string) slog.Level {
	switch name {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// loadConfig reads a JSON configuration file on top of the defaults.
func loadConfig(path string) (txpool.Config, error) {
	config := txpool.DefaultConfig
	if path == "" {
		return config, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return config, fmt.Errorf("reading config: %w", err)
	}
	if v.IsSet("pool-limits.max-gas") {
		config.PoolLimits.MaxGas = cast.ToUint64(v.Get("pool-limits.max-gas"))
	}
	if v.IsSet("pool-limits.max-bytes-size") {
		config.PoolLimits.MaxBytesSize = cast.ToUint64(v.Get("pool-limits.max-bytes-size"))
	}
	if v.IsSet("pool-limits.max-txs") {
		config.PoolLimits.MaxTxs = cast.ToUint64(v.Get("pool-limits.max-txs"))
	}
	if v.IsSet("max-block-gas") {
		config.MaxBlockGas = cast.ToUint64(v.Get("max-block-gas"))
	}
	if v.IsSet("utxo-validation") {
		config.UtxoValidation = v.GetBool("utxo-validation")
	}
	if v.IsSet("ttl") {
		config.TTL = v.GetDuration("ttl")
	}
	if v.IsSet("heavy-work-parallelism") {
		config.HeavyWorkParallelism = v.GetInt("heavy-work-parallelism")
	}
	if v.IsSet("max-tx-size") {
		config.MaxTxSize = cast.ToUint64(v.Get("max-tx-size"))
	}
	return config, nil
}
