// Package server orchestrates all components: host, hooks, manifest, COMMS
// bridge, failure events and the invocation journal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/operations-host/internal/config"
	"github.com/morezero/operations-host/internal/demo"
	"github.com/morezero/operations-host/pkg/commsutil"
	"github.com/morezero/operations-host/pkg/db"
	"github.com/morezero/operations-host/pkg/events"
	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/host"
	"github.com/morezero/operations-host/pkg/journal"
	"github.com/morezero/operations-host/pkg/manifest"
	"github.com/morezero/operations-host/pkg/natsbridge"
)

const logPrefix = "server:server"

// Server is the operations host orchestrator.
type Server struct {
	cfg      *config.Config
	host     *host.Host
	manifest *manifest.Manifest
	nc       *comms.Conn
	bridge   *natsbridge.Bridge
	pool     *pgxpool.Pool
	journal  *journal.Journal
	handle   *host.Handle
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting opshost", logPrefix))

	s, err := New(context.Background(), cfg)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		s.Shutdown(context.Background())
		return err
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// SetupLogging installs a text handler on stdout at the given level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// New builds every component without listening. On error nothing is left
// open.
func New(ctx context.Context, cfg *config.Config) (_ *Server, err error) {
	if err := cfg.ValidateForServe(); err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg}
	defer func() {
		if err != nil {
			s.Shutdown(ctx)
		}
	}()

	// Step 1: Load manifest
	m, err := manifest.Load(cfg.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load manifest: %w", logPrefix, err)
	}
	s.manifest = m

	// Step 2: Build host with demo operations, tasks and statics
	h, err := BuildHost(cfg, m)
	if err != nil {
		return nil, err
	}
	s.host = h

	// Step 3: Journal (optional)
	if cfg.JournalEnabled {
		if err := s.setupJournal(ctx); err != nil {
			return nil, err
		}
	}

	// Step 4: COMMS bridge and failure events (optional)
	if cfg.COMMSEnabled {
		if err := s.setupComms(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// BuildHost creates a host from cfg, registers the demo operations and
// tasks, applies the manifest and installs the configured hooks.
func BuildHost(cfg *config.Config, m *manifest.Manifest) (*host.Host, error) {
	h := host.New(host.Config{
		ApplicationPath:  cfg.ApplicationPath,
		MetadataPath:     cfg.MetadataPath,
		MetricsPath:      cfg.MetricsPath,
		HealthPath:       cfg.HealthPath,
		HomePath:         cfg.HomePath,
		MetricsNamespace: "opshost",
		Version:          cfg.APIVersion,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		ShutdownTimeout:  cfg.ShutdownTimeout,
	})

	if err := demo.Register(h); err != nil {
		return nil, fmt.Errorf("%s - failed to register operations: %w", logPrefix, err)
	}
	if err := m.MountStatics(h); err != nil {
		return nil, err
	}
	scheduled, err := m.ScheduleTasks(h, demo.Tasks(time.Now())...)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - Registered %d operations, scheduled tasks %v", logPrefix, h.Registry().Len(), scheduled))

	gate, err := hooks.NewVersionGate(cfg.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid API_VERSION: %w", logPrefix, err)
	}
	h.Hooks().AddPre(gate)
	// Auth runs before the rate limit so limits are keyed by subject.
	if cfg.JWTSecret != "" {
		auth, err := hooks.NewBearerAuth([]byte(cfg.JWTSecret), cfg.JWTSkipPaths)
		if err != nil {
			return nil, err
		}
		h.Hooks().AddPre(auth)
		slog.Info(fmt.Sprintf("%s - Bearer auth enabled (skip %v)", logPrefix, cfg.JWTSkipPaths))
	}
	if cfg.RateLimitRPS > 0 {
		h.Hooks().AddPre(hooks.NewRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		slog.Info(fmt.Sprintf("%s - Rate limit %.2f rps (burst %d)", logPrefix, cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	h.Hooks().AddErrorHandler(hooks.LogFailures{})
	return h, nil
}

func (s *Server) setupJournal(ctx context.Context) error {
	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := db.ResolveMigrations(s.cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	s.journal = journal.New(journal.NewJournalParams{
		Store:   db.NewRepository(pool),
		Metrics: s.host.Metrics(),
		Buffer:  s.cfg.JournalBuffer,
	})
	s.host.Hooks().AddPost(s.journal)
	s.host.Hooks().AddErrorHandler(s.journal)
	slog.Info(fmt.Sprintf("%s - Invocation journal enabled", logPrefix))
	return nil
}

func (s *Server) setupComms() error {
	nc, err := commsutil.Connect(s.cfg.COMMSURL, s.cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc

	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{FailureSubject: s.cfg.COMMSFailureSubject})
	s.host.Hooks().AddErrorHandler(events.Reporter(publisher, s.cfg.COMMSName))

	s.bridge = natsbridge.NewBridge(natsbridge.NewBridgeParams{
		Conn:           nc,
		Dispatcher:     s.host.Dispatcher(),
		SubjectPrefix:  s.cfg.COMMSSubjectPrefix,
		RequestTimeout: s.cfg.COMMSRequestTimeout,
	})
	return nil
}

// Host returns the configured host.
func (s *Server) Host() *host.Host { return s.host }

// Handle returns the running handle, or nil before Start.
func (s *Server) Handle() *host.Handle { return s.handle }

// Start listens on every configured address and subscribes the bridge.
func (s *Server) Start() error {
	hd, err := s.host.Start(s.cfg.HTTPAddrs...)
	if err != nil {
		return fmt.Errorf("%s - failed to start host: %w", logPrefix, err)
	}
	s.handle = hd

	if s.bridge != nil {
		if err := s.bridge.Start(); err != nil {
			return err
		}
	}
	slog.Info(fmt.Sprintf("%s - opshost is ready on %v", logPrefix, hd.Addrs()))
	return nil
}

// Shutdown stops transports first, then drains the journal and closes
// connections. It is safe on a partially built Server.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.handle != nil {
		if err := s.handle.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s - shutdown: %w", logPrefix, errors.Join(errs...))
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
