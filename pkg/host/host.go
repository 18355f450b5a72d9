// Package host is the per-instance configuration object and HTTP listener
// loop. A Host owns its registry, router, hook pipeline, scheduler and
// metrics; nothing is process-wide, so several hosts can run side by side.
package host

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/morezero/operations-host/pkg/dispatcher"
	"github.com/morezero/operations-host/pkg/hooks"
	"github.com/morezero/operations-host/pkg/metrics"
	"github.com/morezero/operations-host/pkg/registry"
	"github.com/morezero/operations-host/pkg/router"
	"github.com/morezero/operations-host/pkg/scheduler"
)

const logPrefix = "host:host"

// Defaults applied by New.
const (
	DefaultMetadataPath    = "/metadata"
	DefaultHealthPath      = "/health"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultVersion         = "1.0.0"
)

// Config is the static configuration of a Host.
type Config struct {
	// ApplicationPath is a virtual prefix ignored during route matching.
	ApplicationPath string
	MetadataPath    string
	// MetricsPath serves Prometheus metrics; empty disables it.
	MetricsPath string
	HealthPath  string
	// HomePath serves an HTML overview of operations and tasks; empty disables it.
	HomePath         string
	MetricsNamespace string
	Version          string
	MaxBodyBytes     int64
	ShutdownTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MetadataPath == "" {
		c.MetadataPath = DefaultMetadataPath
	}
	if c.HealthPath == "" {
		c.HealthPath = DefaultHealthPath
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return c
}

// Host wires one registry to one dispatcher and its transports.
type Host struct {
	cfg        Config
	registry   *registry.Registry
	router     *router.Router
	hooks      *hooks.Pipeline
	metrics    *metrics.Collector
	scheduler  *scheduler.Scheduler
	dispatcher *dispatcher.Dispatcher
}

// New creates a Host with an empty registry.
func New(cfg Config) *Host {
	cfg = cfg.withDefaults()

	m := metrics.NewCollector(cfg.MetricsNamespace)
	reg := registry.New()
	pipeline := hooks.NewPipeline(m)
	rt := router.New(reg, router.Options{
		ApplicationPath: cfg.ApplicationPath,
		MetadataPath:    cfg.MetadataPath,
	})

	h := &Host{
		cfg:      cfg,
		registry: reg,
		router:   rt,
		hooks:    pipeline,
		metrics:  m,
		scheduler: scheduler.NewScheduler(scheduler.NewSchedulerParams{
			Reporter: pipeline,
			Metrics:  m,
		}),
	}
	h.dispatcher = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Router:   rt,
		Registry: reg,
		Hooks:    pipeline,
		Metrics:  m,
		Version:  cfg.Version,
	})
	return h
}

// Config returns the effective configuration.
func (h *Host) Config() Config { return h.cfg }

// Registry returns the operation registry.
func (h *Host) Registry() *registry.Registry { return h.registry }

// Router returns the router.
func (h *Host) Router() *router.Router { return h.router }

// Hooks returns the hook pipeline.
func (h *Host) Hooks() *hooks.Pipeline { return h.hooks }

// Metrics returns the metrics collector.
func (h *Host) Metrics() *metrics.Collector { return h.metrics }

// Scheduler returns the background task scheduler.
func (h *Host) Scheduler() *scheduler.Scheduler { return h.scheduler }

// Dispatcher returns the dispatcher shared by all transports.
func (h *Host) Dispatcher() *dispatcher.Dispatcher { return h.dispatcher }

// RegisterType exposes the exported methods of source. See registry.RegisterType.
func (h *Host) RegisterType(source any, routePrefix string, opts ...registry.Option) ([]*registry.OperationSignature, error) {
	return h.registry.RegisterType(source, routePrefix, opts...)
}

// RegisterFunc exposes fn at path.
func (h *Host) RegisterFunc(path string, fn any, params ...registry.ParamDecl) (*registry.OperationSignature, error) {
	return h.registry.RegisterFunc(path, fn, params...)
}

// AddStatic serves files under root at urlPrefix.
func (h *Host) AddStatic(urlPrefix, root string) error {
	return h.router.AddStatic(urlPrefix, root)
}

// Schedule registers a background task that runs while the host is started.
func (h *Host) Schedule(name string, interval time.Duration, action scheduler.Action) error {
	return h.scheduler.Schedule(name, interval, action)
}

// ScheduleCron registers a background task driven by a cron expression.
func (h *Host) ScheduleCron(name, spec string, action scheduler.Action) error {
	return h.scheduler.ScheduleCron(name, spec, action)
}

// Handler returns the top-level HTTP handler: health, metrics, the home
// page, then the dispatcher for every other path.
func (h *Host) Handler() http.Handler {
	r := mux.NewRouter()
	r.SkipClean(true)
	r.HandleFunc(h.cfg.HealthPath, h.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if h.cfg.MetricsPath != "" {
		r.Handle(h.cfg.MetricsPath, h.metrics.Handler()).Methods(http.MethodGet)
	}
	if h.cfg.HomePath != "" {
		r.HandleFunc(h.cfg.HomePath, h.handleHome()).Methods(http.MethodGet)
	}
	r.PathPrefix("/").Handler(dispatcher.NewHandler(h.dispatcher, h.cfg.MaxBodyBytes))
	return r
}

// Health is the body of the health endpoint.
type Health struct {
	Status     string               `json:"status"`
	Version    string               `json:"version"`
	Operations int                  `json:"operations"`
	Tasks      []scheduler.TaskInfo `json:"tasks"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Health reports the host state.
func (h *Host) Health() *Health {
	return &Health{
		Status:     "healthy",
		Version:    h.cfg.Version,
		Operations: h.registry.Len(),
		Tasks:      h.scheduler.Tasks(),
		Timestamp:  time.Now().UTC(),
	}
}

func (h *Host) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Health()); err != nil {
		slog.Error(fmt.Sprintf("%s - health encode: %v", logPrefix, err))
	}
}
