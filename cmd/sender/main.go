// Command sender transfers a file through the slot arbiter using binary
// exponential backoff.
//
// Usage:
//
//	sender [flags] <arbiterHost> <arbiterPort> <filePath> <frameSize> <slotTimeMs> <seed> <timeoutSec>
//
// The exit status only reflects argument and setup failures. Whether the
// transfer succeeded is reported on stderr together with its statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/slotchan/discovery"
	"github.com/ryandielhenn/slotchan/internal/logging"
	"github.com/ryandielhenn/slotchan/internal/telemetry"
	"github.com/ryandielhenn/slotchan/pkg/sender"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sender", flag.ContinueOnError)
	var (
		logLevel    = fs.String("log-level", "warn", "debug, info, warn or error")
		logFile     = fs.String("log-file", "", "also write JSON logs to this file (rotated)")
		etcd        = fs.String("etcd", "", "comma separated etcd endpoints; resolve the arbiter by -id instead of host/port")
		id          = fs.String("id", "default", "arbiter id to resolve in etcd")
		metricsAddr = fs.String("metrics-addr", "", "serve /metrics on this address during the transfer")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <arbiterHost> <arbiterPort> <filePath> <frameSize> <slotTimeMs> <seed> <timeoutSec>\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := parseArgs(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return 1
	}

	logger, err := logging.New(logging.Options{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Sync()
	telemetry.SetBuildInfo(version, "sender")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoints := discovery.SplitEndpoints(*etcd); len(endpoints) > 0 {
		addr, err := resolve(ctx, endpoints, *id)
		if err != nil {
			logger.Error("arbiter lookup failed", zap.String("id", *id), zap.Error(err))
			return 1
		}
		logger.Info("resolved arbiter", zap.String("id", *id), zap.String("addr", addr))
		cfg.Addr = addr
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.MetricsHandler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	rep, err := sender.Run(ctx, cfg, sender.WithLogger(logger))
	if rep == nil {
		logger.Error("transfer setup failed", zap.Error(err))
		return 1
	}
	rep.Print(os.Stderr)
	return 0
}

func parseArgs(args []string) (sender.Config, error) {
	if len(args) != 7 {
		return sender.Config{}, fmt.Errorf("expected 7 arguments, got %d", len(args))
	}
	var err error
	atoi := func(name, s string) int {
		v, convErr := strconv.Atoi(s)
		if convErr != nil && err == nil {
			err = fmt.Errorf("invalid %s %q", name, s)
		}
		return v
	}
	port := atoi("arbiterPort", args[1])
	frameSize := atoi("frameSize", args[3])
	slotMs := atoi("slotTimeMs", args[4])
	seed := atoi("seed", args[5])
	timeoutSec := atoi("timeoutSec", args[6])
	if err != nil {
		return sender.Config{}, err
	}
	if port <= 0 || port > 65535 {
		return sender.Config{}, fmt.Errorf("invalid arbiterPort %d", port)
	}
	if slotMs < 0 || timeoutSec < 0 {
		return sender.Config{}, errors.New("slotTimeMs and timeoutSec must not be negative")
	}
	return sender.Config{
		Addr:         net.JoinHostPort(args[0], strconv.Itoa(port)),
		FilePath:     args[2],
		FrameSize:    frameSize,
		SlotDuration: time.Duration(slotMs) * time.Millisecond,
		Seed:         int64(seed),
		Timeout:      time.Duration(timeoutSec) * time.Second,
	}, nil
}

func resolve(ctx context.Context, endpoints []string, id string) (string, error) {
	cli, err := discovery.NewClient(endpoints)
	if err != nil {
		return "", err
	}
	defer cli.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return discovery.LookupArbiter(ctx, cli, id)
}
