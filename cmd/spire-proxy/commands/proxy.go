package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
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
	"github.com/spire-resilient-systems/itrc/pkg/ipc"
	"github.com/spire-resilient-systems/itrc/pkg/metrics"
	_ "github.com/spire-resilient-systems/itrc/pkg/metrics/prometheus"
	"github.com/spire-resilient-systems/itrc/pkg/overlay"
	"github.com/spire-resilient-systems/itrc/pkg/ordinal"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy <subscriber_id> <spines_addr:port> <num_rtus>",
	Short: "Run ITRC-Client on behalf of a set of field-protocol RTU gateways",
	Args:  cobra.ExactArgs(3),
	RunE:  runProxy,
}

func runProxy(cmd *cobra.Command, args []string) error {
	subscriberID64, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid subscriber_id %q: %w", args[0], err)
	}
	subscriberID := uint32(subscriberID64)

	_, portStr, err := net.SplitHostPort(args[1])
	if err != nil {
		return fmt.Errorf("invalid spines_addr:port %q: %w", args[1], err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid overlay port %q: %w", portStr, err)
	}

	numRTUs, err := strconv.Atoi(args[2])
	if err != nil || numRTUs <= 0 {
		return fmt.Errorf("invalid num_rtus %q: must be a positive integer", args[2])
	}
	if numRTUs > wire.NumRTU {
		return fmt.Errorf("num_rtus %d exceeds maximum %d", numRTUs, wire.NumRTU)
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	logger.Info("starting spire-proxy", "subscriber_id", subscriberID, "port", port, "num_rtus", numRTUs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "itrc-proxy",
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
			ServiceName:    "itrc-proxy",
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

	bridge := newRTUBridge()
	baseDir := filepath.Join(os.TempDir(), "spire-itrc", fmt.Sprintf("proxy-%d", subscriberID))
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("create rtu channel directory %s: %w", baseDir, err)
	}

	incarnation := uint32(time.Now().Unix())

	c := client.New(subscriberID, cfg.Overlay.ExtBasePort, incarnation, client.Dependencies{
		Overlay:         newOverlayLink(sock, overlayMetrics),
		Local:           bridge,
		VerifyEnvelope:  verifyEnvelopeFunc(keys),
		VerifyThreshold: verifyThresholdFunc(keys),
		SignEnvelope:    signEnvelopeFunc(keys),
	})
	c.SetReplicasFromConfig(initialCfg)

	group, gctx := errgroup.WithContext(ctx)

	rtuSockets := make([]*ipc.Socket, 0, numRTUs)
	for i := 0; i < numRTUs; i++ {
		rtuID := uint32(i)
		localPath := filepath.Join(baseDir, fmt.Sprintf("rtu-%d.sock", rtuID))
		driverPath := filepath.Join(baseDir, fmt.Sprintf("rtu-%d-driver.sock", rtuID))
		rtuSock, err := ipc.Listen(localPath)
		if err != nil {
			return fmt.Errorf("listen rtu %d channel %s: %w", rtuID, localPath, err)
		}
		rtuSockets = append(rtuSockets, rtuSock)
		bridge.add(&rtuChannel{rtuID: rtuID, local: rtuSock, driverPath: driverPath})

		group.Go(func() error { return runRTUDriverLoop(gctx, rtuSock, c, incarnation) })
	}
	defer func() {
		for _, s := range rtuSockets {
			_ = s.Close()
		}
	}()

	group.Go(func() error { return runProxyOverlayLoop(gctx, sock, c) })

	reloadCh := make(chan *wire.ConfigMessage, 1)
	if err := config.WatchReload(GetConfigFile(), func(newCfg *config.Config) {
		updated, err := newCfg.InitialConfigMessage()
		if err != nil {
			logger.Warn("proxy: rebuild configuration on reload", "error", err)
			return
		}
		select {
		case reloadCh <- updated:
		default:
		}
	}); err != nil {
		logger.Warn("proxy: config reload watch not installed", "error", err)
	}
	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case newCfg := <-reloadCh:
				newKeys, err := loadClientKeyMaterial(cfg.Keys, newCfg)
				if err != nil {
					logger.Warn("proxy: reload key material", "error", err)
					continue
				}
				keys.Swap(newKeys)
				c.OnConfigAgentMessage(newCfg)
				logger.Info("proxy: applied reconfiguration", "global_configuration_number", newCfg.GlobalConfigurationNumber)
			}
		}
	})

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
		}
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		return fmt.Errorf("spire-proxy: %w", err)
	}

	bridge.closeAll()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	<-shutdownCtx.Done()
	return nil
}

// runProxyOverlayLoop feeds every TC_FINAL datagram arriving on the
// client's bound overlay port to Client.Receive.
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
			logger.Warn("proxy overlay recv failed", "error", err)
			continue
		}
		raw := append([]byte(nil), buf[:n]...)
		if err := c.Receive(raw); err != nil {
			logger.Warn("client: handle tc_final", "error", err)
			continue
		}
	}
}

// runRTUDriverLoop reads RTU_DATA submissions from one field-protocol
// driver's local channel, stamps this process's incarnation, and fans
// each one out to the current control-center replica set via Client.
func runRTUDriverLoop(ctx context.Context, sock *ipc.Socket, c *client.Client, incarnation uint32) error {
	buf := make([]byte, wire.MaxLen)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := sock.Recv(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("rtu driver ipc recv failed", "error", err)
			continue
		}
		data, err := wire.DecodeRtuDataMsg(append([]byte(nil), buf[:n]...))
		if err != nil {
			logger.Warn("decode rtu data message", "error", err)
			continue
		}
		data.Seq.Incarnation = incarnation
		if err := data.Validate(); err != nil {
			logger.Warn("invalid rtu data message", "error", err, "rtu_id", data.RtuID)
			continue
		}

		inner := wire.NewSignedMessage(0, data.RtuID, wire.RtuData, incarnation, 0, 0, data.Encode())
		if err := c.Send(ordinal.SeqPair{Incarnation: incarnation, SeqNum: data.Seq.SeqNum}, inner.Encode()); err != nil {
			logger.Warn("client: send rtu data", "error", err, "rtu_id", data.RtuID)
		}
	}
}
