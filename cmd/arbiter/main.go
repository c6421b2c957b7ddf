// Command arbiter runs the slot arbiter on a TCP port.
//
// Usage:
//
//	arbiter [flags] <port> <slotTimeMs>
//
// The arbiter shuts down when its standard input reaches end of file
// (Ctrl+D) or on SIGINT/SIGTERM, then prints every connected participant's
// frame and collision counts on stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
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
	"github.com/ryandielhenn/slotchan/pkg/arbiter"
	"github.com/ryandielhenn/slotchan/pkg/frame"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("arbiter", flag.ContinueOnError)
	var (
		opsAddr     = fs.String("ops-addr", "", "serve /healthz, /info, /participants and /metrics on this address")
		capacity    = fs.Int("capacity", arbiter.DefaultCapacity, "maximum concurrent participants")
		logLevel    = fs.String("log-level", "info", "debug, info, warn or error")
		logFile     = fs.String("log-file", "", "also write JSON logs to this file (rotated)")
		etcd        = fs.String("etcd", "", "comma separated etcd endpoints to register with")
		id          = fs.String("id", "default", "arbiter id used for etcd registration")
		advertise   = fs.String("advertise", "", "host to register in etcd (default 127.0.0.1)")
		ignoreStdin = fs.Bool("ignore-stdin", false, "do not shut down on stdin EOF")
		maxFrame    = fs.Int("max-frame", frame.MaxFrameSize, "largest frame accepted in bytes, header included; must cover the senders' frameSize")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <port> <slotTimeMs>\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 1
	}
	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil || port < 0 || port > 65535 {
		fmt.Fprintf(os.Stderr, "invalid port %q\n", fs.Arg(0))
		return 1
	}
	slotMs, err := strconv.Atoi(fs.Arg(1))
	if err != nil || slotMs <= 0 {
		fmt.Fprintf(os.Stderr, "invalid slot time %q\n", fs.Arg(1))
		return 1
	}

	logger, err := logging.New(logging.Options{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Sync()
	telemetry.SetBuildInfo(version, "arbiter")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Bind the channel
	a, err := arbiter.New(arbiter.Config{
		Addr:         net.JoinHostPort("", strconv.Itoa(port)),
		SlotDuration: time.Duration(slotMs) * time.Millisecond,
		Capacity:     *capacity,
		MaxFrameSize: *maxFrame,
	}, arbiter.WithLogger(logger))
	if err != nil {
		logger.Error("arbiter setup failed", zap.Error(err))
		return 1
	}

	// 2. Ops endpoints
	if *opsAddr != "" {
		srv := &http.Server{Addr: *opsAddr, Handler: arbiter.NewOpsHandler(a), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("ops server listening", zap.String("addr", *opsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// 3. Register with etcd
	if endpoints := discovery.SplitEndpoints(*etcd); len(endpoints) > 0 {
		cli, err := discovery.NewClient(endpoints)
		if err != nil {
			logger.Error("etcd client", zap.Error(err))
			return 1
		}
		defer cli.Close()

		regCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		addr := discovery.AdvertiseAddr(a.Addr().String(), *advertise)
		leaseID, stopKeepAlive, err := discovery.RegisterArbiter(regCtx, cli, *id, addr, 10)
		cancel()
		if err != nil {
			logger.Error("etcd registration failed", zap.Error(err))
			return 1
		}
		logger.Info("registered with etcd", zap.String("key", discovery.Key(*id)), zap.String("addr", addr))
		defer func() {
			stopKeepAlive()
			revokeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = cli.Revoke(revokeCtx, leaseID)
		}()
	}

	// 4. Shut down on end of input
	if !*ignoreStdin {
		logger.Info("press Ctrl+D to quit")
		go func() {
			_, _ = io.Copy(io.Discard, os.Stdin)
			logger.Info("EOF detected, shutting down")
			stop()
		}()
	}

	if _, err := a.Run(ctx); err != nil {
		logger.Error("arbiter stopped", zap.Error(err))
		return 1
	}
	return 0
}
