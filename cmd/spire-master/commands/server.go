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
	"github.com/spire-resilient-systems/itrc/pkg/configstore"
	"github.com/spire-resilient-systems/itrc/pkg/inject"
	"github.com/spire-resilient-systems/itrc/pkg/ipc"
	"github.com/spire-resilient-systems/itrc/pkg/master"
	"github.com/spire-resilient-systems/itrc/pkg/metrics"
	_ "github.com/spire-resilient-systems/itrc/pkg/metrics/prometheus"
	"github.com/spire-resilient-systems/itrc/pkg/overlay"
	"github.com/spire-resilient-systems/itrc/pkg/reconfig"
	"github.com/spire-resilient-systems/itrc/pkg/replicastate"
	"github.com/spire-resilient-systems/itrc/pkg/wire"
)

var serverCmd = &cobra.Command{
	Use:   "server <replica_id> <spines_int_addr:port> <spines_ext_addr:port>",
	Short: "Run one replica's ITRC-Master and ITRC-Inject tasks",
	Args:  cobra.ExactArgs(3),
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	replicaID64, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid replica_id %q: %w", args[0], err)
	}
	selfID := uint32(replicaID64)

	_, intPortStr, err := net.SplitHostPort(args[1])
	if err != nil {
		return fmt.Errorf("invalid spines_int_addr:port %q: %w", args[1], err)
	}
	intPort, err := strconv.Atoi(intPortStr)
	if err != nil {
		return fmt.Errorf("invalid internal overlay port %q: %w", intPortStr, err)
	}

	_, extPortStr, err := net.SplitHostPort(args[2])
	if err != nil {
		return fmt.Errorf("invalid spines_ext_addr:port %q: %w", args[2], err)
	}
	extPort, err := strconv.Atoi(extPortStr)
	if err != nil {
		return fmt.Errorf("invalid external overlay port %q: %w", extPortStr, err)
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	logger.Info("starting spire-master", "replica_id", selfID, "int_port", intPort, "ext_port", extPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "itrc-master",
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
			ServiceName:    "itrc-master",
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
	var replicationMetrics metrics.ReplicationMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		overlayMetrics = metrics.NewOverlayMetrics()
		replicationMetrics = metrics.NewReplicationMetrics()
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

	store, err := configstore.Open(cfg.ConfigStore.Path)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer func() { _ = store.Close() }()

	initialCfg, err := cfg.InitialConfigMessage()
	if err != nil {
		return fmt.Errorf("build initial configuration: %w", err)
	}

	keyMat, err := loadKeyMaterial(cfg.Keys, initialCfg)
	if err != nil {
		return fmt.Errorf("load key material: %w", err)
	}
	keys := replicastate.NewKeySnapshot(keyMat)

	state := replicastate.New(initialCfg)

	smSock, err := ipc.Dial(cfg.IPC.SMMainPath)
	if err != nil {
		return fmt.Errorf("dial sm main ipc %s: %w", cfg.IPC.SMMainPath, err)
	}
	defer func() { _ = smSock.Close() }()

	primeSock, err := ipc.Dial(cfg.IPC.PrimeClientPath)
	if err != nil {
		return fmt.Errorf("dial prime client ipc %s: %w", cfg.IPC.PrimeClientPath, err)
	}
	defer func() { _ = primeSock.Close() }()

	internalSock, err := overlay.Listen(intPort)
	if err != nil {
		return fmt.Errorf("listen internal overlay :%d: %w", intPort, err)
	}
	internal := newInternalLink(internalSock, overlayMetrics)
	internal.setPeersFromConfig(initialCfg, selfID)

	externalSock, err := overlay.Listen(extPort)
	if err != nil {
		return fmt.Errorf("listen external overlay :%d: %w", extPort, err)
	}
	signEnvelope := signEnvelopeFunc(keys)
	external := newExternalLink(externalSock, selfID, signEnvelope, keys, overlayMetrics)

	inj := inject.New(selfID, inject.Dependencies{
		Prime:  &primeLink{sock: primeSock},
		Verify: verifyEnvelopeFunc(keys),
		Sign:   signEnvelope,
	})

	isCC := cfg.IsCC
	reqShares := int(initialCfg.F) + 1

	m := master.New(selfID, reqShares, isCC, state, master.Dependencies{
		SM:             &smLink{sock: smSock},
		Prime:          inj,
		Internal:       internal,
		Client:         external,
		ForwardToPrime: func(c *wire.ConfigMessage) error { return forwardConfigToPrime(primeSock, selfID, c) },
		SignShare:      signShareFunc(keys),
		SignEnvelope:   signEnvelope,
		VerifyEnvelope: verifyEnvelopeFunc(keys),
		Combine:        combineFunc(keys),
		Digest:         digestFunc(),
	})

	coordinator := reconfig.New(selfID, m, keys, &masterOverlay{internal: internal, external: external}, func(c *wire.ConfigMessage) (*replicastate.KeyMaterial, error) {
		return loadKeyMaterial(cfg.Keys, c)
	})

	configAgentSock, err := ipc.Listen(cfg.IPC.ConfigAgentPath)
	if err != nil {
		return fmt.Errorf("listen config agent ipc %s: %w", cfg.IPC.ConfigAgentPath, err)
	}
	defer func() { _ = configAgentSock.Close() }()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return runExternalLoop(gctx, external, inj) })
	group.Go(func() error { return runInternalLoop(gctx, internalSock, m, overlayMetrics) })
	group.Go(func() error { return runPrimeLoop(gctx, primeSock, m, replicationMetrics) })
	group.Go(func() error { return runSMReplyLoop(gctx, smSock, m) })
	group.Go(func() error {
		return runConfigAgentLoop(gctx, configAgentSock, store, coordinator, func(c *wire.ConfigMessage) {
			internal.setPeersFromConfig(c, selfID)
		})
	})
	if replicationMetrics != nil {
		group.Go(func() error { return runQueueDepthSampler(gctx, m, replicationMetrics) })
	}

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
		return fmt.Errorf("spire-master: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	<-shutdownCtx.Done()
	return nil
}

// smLink adapts an ipc.Socket to master.SMLink.
type smLink struct{ sock *ipc.Socket }

func (s *smLink) Send(payload []byte) error {
	_, err := s.sock.Write(payload)
	return err
}

// primeLink adapts an ipc.Socket to inject.PrimeLink.
type primeLink struct{ sock *ipc.Socket }

func (p *primeLink) Send(encoded []byte) error {
	_, err := p.sock.Write(encoded)
	return err
}

// forwardConfigToPrime marshals an accepted reconfiguration and hands
// it to the local Prime replica the same way Inject forwards any
// other client-originated event, so Prime assigns it an ordinal like
// any other PRIME_SYSTEM_RECONF.
func forwardConfigToPrime(primeSock *ipc.Socket, selfID uint32, cfg *wire.ConfigMessage) error {
	body, err := wire.MarshalConfigMessage(cfg)
	if err != nil {
		return fmt.Errorf("marshal config message: %w", err)
	}
	envelope := wire.NewSignedMessage(0, selfID, wire.PrimeSystemReconf, 0, 0, cfg.GlobalConfigurationNumber, body)
	_, err = primeSock.Write(envelope.Encode())
	return err
}

// runExternalLoop feeds every datagram arriving on the external
// overlay socket to Inject, remembering the sender's address so a
// later TC_FINAL can be routed back to it.
func runExternalLoop(ctx context.Context, link *externalLink, inj *inject.Inject) error {
	buf := make([]byte, wire.MaxLen)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, addr, err := link.sock.RecvFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("external overlay recv failed", "error", err)
			continue
		}
		raw := append([]byte(nil), buf[:n]...)
		decoded, err := wire.Decode(raw)
		if err == nil {
			link.recordSender(decoded.MachineID, addr)
		}
		if err := inj.HandleExternal(raw); err != nil {
			logger.Warn("inject: handle external message", "error", err)
		}
	}
}

// runInternalLoop feeds every datagram arriving on the internal
// overlay socket to Master's TC_SHARE/STATE_XFER handler.
func runInternalLoop(ctx context.Context, sock *overlay.Socket, m *master.Master, om metrics.OverlayMetrics) error {
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
			logger.Warn("internal overlay recv failed", "error", err)
			continue
		}
		raw := append([]byte(nil), buf[:n]...)
		if err := m.OnInternalMessage(raw); err != nil {
			logger.Warn("master: handle internal message", "error", err)
		}
	}
}

// runPrimeLoop feeds every Prime-ordered event arriving on the
// PRIME_CLIENT ipc channel to Master.
func runPrimeLoop(ctx context.Context, sock *ipc.Socket, m *master.Master, rm metrics.ReplicationMetrics) error {
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
			logger.Warn("prime ipc recv failed", "error", err)
			continue
		}
		event, err := wire.DecodePrimeOrderedEvent(append([]byte(nil), buf[:n]...))
		if err != nil {
			logger.Warn("decode prime ordered event", "error", err)
			continue
		}
		if err := m.OnPrimeOrdered(event.Ord, event.Envelope); err != nil {
			logger.Warn("master: handle prime ordered event", "error", err, "ord", event.Ord.OrdNum)
			continue
		}
		if rm != nil {
			rm.RecordOrdinalDelivered()
		}
	}
}

// runSMReplyLoop feeds every reply arriving on the SM_MAIN ipc channel
// to Master.
func runSMReplyLoop(ctx context.Context, sock *ipc.Socket, m *master.Master) error {
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
			logger.Warn("sm main ipc recv failed", "error", err)
			continue
		}
		reply, err := wire.Decode(append([]byte(nil), buf[:n]...))
		if err != nil {
			logger.Warn("decode sm reply", "error", err)
			continue
		}
		if err := m.OnSMReply(reply); err != nil {
			logger.Warn("master: handle sm reply", "error", err)
		}
	}
}

// runConfigAgentLoop feeds every PRIME_OOB_CONFIG_MSG arriving on the
// config-agent ipc channel through the full reconfiguration procedure,
// recording each accepted configuration in the history ledger and
// updating the internal peer table when a slot assignment survives.
func runConfigAgentLoop(ctx context.Context, sock *ipc.Socket, store *configstore.Store, coordinator *reconfig.Coordinator, onAccepted func(*wire.ConfigMessage)) error {
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
			logger.Warn("config agent ipc recv failed", "error", err)
			continue
		}
		newCfg, err := wire.UnmarshalConfigMessage(append([]byte(nil), buf[:n]...))
		if err != nil {
			logger.Warn("decode config agent message", "error", err)
			continue
		}
		assigned, err := coordinator.Apply(newCfg)
		if err != nil {
			logger.Warn("reconfig: apply", "error", err, "global_configuration_number", newCfg.GlobalConfigurationNumber)
			continue
		}
		if err := store.RecordAccepted(ctx, newCfg, time.Now()); err != nil {
			logger.Warn("config store: record accepted configuration", "error", err)
		}
		if assigned {
			onAccepted(newCfg)
			logger.Info("reconfiguration applied", "global_configuration_number", newCfg.GlobalConfigurationNumber)
		} else {
			logger.Info("reconfiguration applied, replica no longer assigned a slot", "global_configuration_number", newCfg.GlobalConfigurationNumber)
		}
	}
}

// runQueueDepthSampler periodically reports the TC queue depth, the
// one piece of Master's state a metrics collector can observe without
// Master itself taking a metrics dependency.
func runQueueDepthSampler(ctx context.Context, m *master.Master, rm metrics.ReplicationMetrics) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rm.RecordQueueDepth("tc", m.TCQueueLen())
		}
	}
}
