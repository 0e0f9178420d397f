// gordpclient is a daemon that holds open a declarative set of RDP client
// connections (spec.md §3, §5) and exposes their protocol-level counters as
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/gordp/internal/config"
	rdpmetrics "github.com/dantte-lp/gordp/internal/metrics"
	"github.com/dantte-lp/gordp/internal/rdp"
	"github.com/dantte-lp/gordp/internal/transport"
	appversion "github.com/dantte-lp/gordp/internal/version"
)

// shutdownTimeout bounds how long the metrics server is given to drain
// active scrapes during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge captures the last 500ms of execution traces for
// post-mortem debugging of connection failures.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("gordpclient starting",
		slog.String("version", appversion.Version),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("connections", len(cfg.Connections)),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := rdpmetrics.NewCollector(reg)

	mgr := newConnManager(collector, logger)
	defer mgr.closeAll()

	if err := runDaemon(cfg, mgr, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("gordpclient exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("gordpclient stopped")
	return 0
}

// runDaemon sets up the metrics HTTP server and systemd integration
// goroutines under an errgroup with a signal-aware context.
func runDaemon(
	cfg *config.Config,
	mgr *connManager,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, mgr, logger)
		return nil
	})

	mgr.reconcile(cfg.Connections, cfg.Security)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, mgr, logger, fr, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Connection Manager — one rdp.Session per declarative connection
// -------------------------------------------------------------------------

// managedConn pairs a dialed transport with the Session running over it.
type managedConn struct {
	name    string
	conn    *transport.Conn
	session *rdp.Session
}

// connManager holds the currently running connections, keyed by name, and
// reconciles them against a freshly loaded configuration on startup and on
// SIGHUP (mirrors the teacher's declarative session reconciliation, adapted
// from BFD peers to RDP targets).
type connManager struct {
	mu        sync.Mutex
	conns     map[string]*managedConn
	collector *rdpmetrics.Collector
	logger    *slog.Logger
}

func newConnManager(collector *rdpmetrics.Collector, logger *slog.Logger) *connManager {
	return &connManager{
		conns:     make(map[string]*managedConn),
		collector: collector,
		logger:    logger,
	}
}

// reconcile dials any connection in want that isn't already running and
// tears down any running connection no longer present in want.
func (m *connManager) reconcile(want []config.ConnectionConfig, defaults config.SecurityConfig) {
	desired := make(map[string]config.ConnectionConfig, len(want))
	for _, c := range want {
		name := c.Name
		if name == "" {
			name = c.Addr
		}
		desired[name] = c
	}

	m.mu.Lock()
	var stale []string
	for name := range m.conns {
		if _, ok := desired[name]; !ok {
			stale = append(stale, name)
		}
	}
	m.mu.Unlock()

	for _, name := range stale {
		m.remove(name, "removed from configuration")
	}

	for name, c := range desired {
		m.mu.Lock()
		_, exists := m.conns[name]
		m.mu.Unlock()
		if exists {
			continue
		}
		m.add(name, c, defaults)
	}
}

// add dials and starts a single connection, running its Session.Run() loop
// in its own goroutine. Dial failures are logged but do not stop the
// daemon -- the connection is simply absent until the next reconcile.
func (m *connManager) add(name string, c config.ConnectionConfig, defaults config.SecurityConfig) {
	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	tc, err := transport.Dial(c.Addr, timeout)
	if err != nil {
		m.logger.Error("failed to dial connection",
			slog.String("name", name),
			slog.String("addr", c.Addr),
			slog.String("error", err.Error()),
		)
		return
	}

	method := c.EncryptionMethod
	if method == "" {
		method = defaults.EncryptionMethod
	}

	session := rdp.NewSession(tc)
	session.Recorder = m.collector
	session.Settings.Encryption = config.EncryptionMethod(method) != rdp.EncryptionMethodNone
	session.Settings.EncryptionMethod = config.EncryptionMethod(method)
	session.Security.AllowInsecureLegacyMAC = defaults.AllowInsecureLegacyMAC
	session.Security.SecureChecksum = defaults.SecureChecksum

	mc := &managedConn{name: name, conn: tc, session: session}

	m.mu.Lock()
	m.conns[name] = mc
	m.mu.Unlock()

	m.logger.Info("connection established",
		slog.String("name", name),
		slog.String("addr", c.Addr),
		slog.String("encryption_method", method),
	)

	go m.runSession(mc)
}

// runSession drives a Session's receive loop until it disconnects, then
// removes it from the manager so a later reconcile can redial it.
func (m *connManager) runSession(mc *managedConn) {
	if err := mc.session.Run(); err != nil {
		m.logger.Warn("session ended with error",
			slog.String("name", mc.name),
			slog.String("error", err.Error()),
		)
	}

	m.mu.Lock()
	if m.conns[mc.name] == mc {
		delete(m.conns, mc.name)
	}
	m.mu.Unlock()

	if err := mc.conn.Close(); err != nil {
		m.logger.Warn("failed to close connection",
			slog.String("name", mc.name),
			slog.String("error", err.Error()),
		)
	}
}

// remove disconnects and closes a single running connection by name.
func (m *connManager) remove(name, reason string) {
	m.mu.Lock()
	mc, ok := m.conns[name]
	if ok {
		delete(m.conns, name)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	mc.session.Disconnect(reason)
	if err := mc.conn.Close(); err != nil {
		m.logger.Warn("failed to close connection",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}

// closeAll disconnects and closes every running connection.
func (m *connManager) closeAll() {
	m.mu.Lock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.remove(name, "daemon shutdown")
	}
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval. Exits immediately if no watchdog is set.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level + connection reconciliation
// -------------------------------------------------------------------------

func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	mgr *connManager,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, mgr, logger)
		}
	}
}

func reloadConfig(
	configPath string,
	logLevel *slog.LevelVar,
	mgr *connManager,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	mgr.reconcile(newCfg.Connections, newCfg.Security)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(
	ctx context.Context,
	mgr *connManager,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	mgr.closeAll()

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
