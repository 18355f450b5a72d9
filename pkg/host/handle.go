package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

const handleLogPrefix = "host:handle"

// Handle is a running host. Stop and Close may be called any number of
// times, from any goroutine.
type Handle struct {
	host *Host

	mu        sync.Mutex
	servers   []*http.Server
	listeners []net.Listener
	addrs     []net.Addr
	stopped   bool

	wg   sync.WaitGroup
	done chan struct{}
}

// Start listens on every address, starts one accept loop per listener and
// starts the scheduler. Each accepted connection is served on its own
// goroutine. If any address fails to listen, nothing is left running.
func (h *Host) Start(addrs ...string) (*Handle, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%s - at least one listen address is required", handleLogPrefix)
	}

	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return nil, fmt.Errorf("%s - listen on %s: %w", handleLogPrefix, addr, err)
		}
		listeners = append(listeners, ln)
	}

	handler := h.Handler()
	hd := &Handle{host: h, done: make(chan struct{})}
	for _, ln := range listeners {
		srv := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		}
		hd.servers = append(hd.servers, srv)
		hd.listeners = append(hd.listeners, ln)
		hd.addrs = append(hd.addrs, ln.Addr())

		hd.wg.Add(1)
		go hd.serve(srv, ln)
	}
	go func() {
		hd.wg.Wait()
		close(hd.done)
	}()

	h.scheduler.Start()
	slog.Info(fmt.Sprintf("%s - host started on %v (application path %q)", handleLogPrefix, hd.addrs, h.cfg.ApplicationPath))
	return hd, nil
}

func (hd *Handle) serve(srv *http.Server, ln net.Listener) {
	defer hd.wg.Done()
	slog.Info(fmt.Sprintf("%s - listening on %s", handleLogPrefix, ln.Addr()))
	err := srv.Serve(ln)
	switch {
	case errors.Is(err, http.ErrServerClosed):
	case errors.Is(err, net.ErrClosed):
		slog.Info(fmt.Sprintf("%s - listener %s closed", handleLogPrefix, ln.Addr()))
	default:
		slog.Error(fmt.Sprintf("%s - serve on %s: %v", handleLogPrefix, ln.Addr(), err))
	}
}

// Addrs returns the bound addresses, which stay readable after Close.
func (hd *Handle) Addrs() []net.Addr {
	return append([]net.Addr(nil), hd.addrs...)
}

// Listeners returns the live listeners, or nil once the handle is stopped.
func (hd *Handle) Listeners() []net.Listener {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	if hd.listeners == nil {
		return nil
	}
	return append([]net.Listener(nil), hd.listeners...)
}

// Done is closed when every accept loop has returned.
func (hd *Handle) Done() <-chan struct{} { return hd.done }

// Stop refuses new connections at once, then waits for in-flight requests
// and running scheduler ticks until ctx is done. Only the first call does
// any work.
func (hd *Handle) Stop(ctx context.Context) error {
	hd.mu.Lock()
	if hd.stopped {
		hd.mu.Unlock()
		return nil
	}
	hd.stopped = true
	servers := hd.servers
	hd.servers = nil
	hd.listeners = nil
	hd.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - stopping host on %v", handleLogPrefix, hd.addrs))

	var errs []error
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, srv := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, net.ErrClosed) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(srv)
	}
	wg.Wait()

	if err := hd.host.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s - stop: %w", handleLogPrefix, errors.Join(errs...))
	}
	slog.Info(fmt.Sprintf("%s - host stopped", handleLogPrefix))
	return nil
}

// Close stops the host, waiting at most the configured shutdown timeout.
func (hd *Handle) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), hd.host.cfg.ShutdownTimeout)
	defer cancel()
	return hd.Stop(ctx)
}
