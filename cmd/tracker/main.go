package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/btcore/tracker/internal/btutil"
	"github.com/btcore/tracker/internal/collector"
	"github.com/btcore/tracker/internal/httptracker"
	"github.com/btcore/tracker/internal/swarm"
	"github.com/btcore/tracker/internal/udptracker"
	"github.com/btcore/tracker/internal/whitelist"
)

var version = "dev"

func main() {
	cfg := parseFlags(os.Args[1:])

	if cfg.showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	log := newLogger(cfg.debug)
	defer log.Sync() //nolint:errcheck // best-effort flush on exit

	if cfg.secret == fallbackSecret {
		log.Warn("using insecure default secret key; set -secret or BTCORE_TRACKER__SECRET for production use")
	}
	log.Info("starting btcore-tracker", zap.String("version", version))

	clock := btutil.RealClock{}
	registry := swarm.NewRegistry(clock)

	wl := &whitelist.Whitelist{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.whitelistPath != "" {
		wl.Watch(ctx, cfg.whitelistPath, log)
	}

	coll := collector.New(registry, time.Duration(cfg.collectInterval)*time.Second, log)
	udpSrv := udptracker.New(udptracker.Config{Port: cfg.udpPort, Secret: cfg.secret}, registry, wl, clock, log)
	httpSrv := httptracker.New(httptracker.Config{Addr: cfg.httpAddr}, registry, wl, log)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		coll.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := udpSrv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("udp tracker: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpSrv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("http tracker: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server failed, shutting down", zap.Error(err))
		stop()
	}

	wg.Wait()
	log.Info("shutdown complete")
}

// newLogger builds a zap logger in the teacher's [INFO]/[WARN]/[DEBUG]
// spirit, generalized to zap's structured development encoder.
func newLogger(debug bool) *zap.Logger {
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
