package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spire-resilient-systems/itrc/internal/config"
	"github.com/spire-resilient-systems/itrc/internal/logger"
	"github.com/spire-resilient-systems/itrc/internal/telemetry"
	"github.com/spire-resilient-systems/itrc/pkg/client"
	"github.com/spire-resilient-systems/itrc/pkg/metrics"
	_ "github.com/spire-resilient-systems/itrc/pkg/metrics/prometheus"
	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/overlay"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark <client_id> <spines_addr:port> <poll_usec> <num_polls>",
	Short: "Measure replay-channel round-trip latency against the current replica set",
	Args:  cobra.ExactArgs(4),
	RunE:  runBenchmark,
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	clientID64, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid client_id %q: %w", args[0], err)
	}
	clientID := uint32(clientID64)

	_, portStr, err := net.SplitHostPort(args[1])
	if err != nil {
		return fmt.Errorf("invalid spines_addr:port %q: %w", args[1], err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid overlay port %q: %w", portStr, err)
	}

	pollUsec, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || pollUsec <= 0 {
		return fmt.Errorf("invalid poll_usec %q: must be a positive integer", args[2])
	}

	numPolls64, err := strconv.ParseUint(args[3], 10, 32)
	if err != nil || numPolls64 == 0 {
		return fmt.Errorf("invalid num_polls %q: must be a positive integer", args[3])
	}
	numPolls := uint32(numPolls64)

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	logger.Info("starting spire-benchmark", "client_id", clientID, "port", port, "poll_usec", pollUsec, "num_polls", numPolls)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "itrc-benchmark",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	if cfg.Telemetry.Profiling.Enabled {
		shutdownProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
			Enabled:        true,
			ServiceName:    "itrc-benchmark",
			ServiceVersion: Version,
			Endpoint:       cfg.Telemetry.Profiling.Endpoint,
			ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		})
		if err != nil {
			return fmt.Errorf("initialize profiling: %w", err)
		}
		defer func() { _ = shutdownProfiling() }()
	}

	var overlayMetrics metrics.OverlayMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		overlayMetrics = metrics.NewOverlayMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}

	initialCfg, err := cfg.InitialConfigMessage()
	if err != nil {
		return fmt.Errorf("build initial configuration: %w", err)
	}

	keyMat, err := loadClientKeyMaterial(cfg.Keys, initialCfg)
	if err != nil {
		return fmt.Errorf("load key material: %w", err)
	}
	keys := replicastate.NewKeySnapshot(keyMat)

	sock, err := overlay.Listen(port)
	if err != nil {
		return fmt.Errorf("listen overlay :%d: %w", port, err)
	}
	defer func() { _ = sock.Close() }()

	incarnation := uint32(time.Now().Unix())
	runner := newBenchmarkRunner(clientID, numPolls)

	c := client.New(clientID, cfg.Overlay.ExtBasePort, incarnation, client.Dependencies{
		Overlay:         newOverlayLink(sock, overlayMetrics),
		Local:           runner,
		VerifyEnvelope:  verifyEnvelopeFunc(keys),
		VerifyThreshold: verifyThresholdFunc(keys),
		SignEnvelope:    signEnvelopeFunc(keys),
	})
	c.SetReplicasFromConfig(initialCfg)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return runProxyOverlayLoop(gctx, sock, c) })
	group.Go(func() error { return runPingLoop(gctx, c, runner, incarnation, time.Duration(pollUsec)*time.Microsecond, numPolls) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	group.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
			return nil
		case <-gctx.Done():
			return nil
		case <-runner.done:
			logger.Info("benchmark: target reply count reached")
			cancel()
			return nil
		}
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("spire-benchmark: %w", err)
	}

	runner.printStatistics()
	return nil
}

// runProxyOverlayLoop feeds every TC_FINAL datagram arriving on the
// client's bound overlay port to Client.Receive. Named for parity with
// spire-proxy's identical loop; duplicated rather than shared, since
// the two binaries share no internal package for their CLI glue.
func runProxyOverlayLoop(ctx context.Context, sock *overlay.Socket, c *client.Client) error {
	buf := make([]byte, wire.MaxLen)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, _, err := sock.RecvFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("benchmark overlay recv failed", "error", err)
			continue
		}
		raw := append([]byte(nil), buf[:n]...)
		if err := c.Receive(raw); err != nil {
			logger.Warn("client: handle tc_final", "error", err)
			continue
		}
	}
}

// runPingLoop generates one BENCHMARK ping every period, stopping once
// num_polls pings have been sent, mirroring Gen_Msg's Poll_Period loop.
func runPingLoop(ctx context.Context, c *client.Client, runner *benchmarkRunner, incarnation uint32, period time.Duration, numPolls uint32) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seqNum uint32
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			seqNum++
			now := time.Now()
			bm := &wire.BenchmarkMsg{
				Seq:      ordinal.SeqPair{Incarnation: incarnation, SeqNum: seqNum},
				Sender:   int32(runner.clientID),
				PingSec:  uint32(now.Unix()),
				PingUsec: uint32(now.Nanosecond() / 1000),
			}
			runner.recordSent(seqNum, now)

			inner := wire.NewSignedMessage(0, runner.clientID, wire.Benchmark, incarnation, 0, 0, bm.Encode())
			if err := c.Send(ordinal.SeqPair{Incarnation: incarnation, SeqNum: seqNum}, inner.Encode()); err != nil {
				logger.Warn("client: send benchmark ping", "error", err, "seq_num", seqNum)
			}

			if seqNum >= numPolls {
				return nil
			}
		}
	}
}
