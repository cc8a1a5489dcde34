package core

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	ingerr "tcpsink/internal/errors"
	"tcpsink/internal/metrics"
	"tcpsink/internal/retry"
	"tcpsink/internal/session"
	"tcpsink/util"
)

// ListenMode accepts TCP connections and runs one session per
// connection on its own goroutine.  Client ids start at 1 and increase
// strictly with every accepted connection.
type ListenMode struct {
	Address        string // host:port, empty host binds every interface
	MaxConnections int    // 0 = unlimited; excess clients wait in the backlog
	GracePeriod    time.Duration
	MetricsAddr    string // empty disables the HTTP metrics endpoint

	// Session is the template every session is started from; ID is
	// assigned per connection.
	Session session.Config

	Logger  *util.Logger
	Metrics *metrics.Collector

	// OnListen, if set, is called with the bound address before the
	// first Accept.
	OnListen func(net.Addr)
	// OnSessionEnd, if set, is called after each session's Run returns.
	OnSessionEnd func(*session.Session, error)

	// Listener, if set, is served instead of binding Address.  Run
	// takes ownership and closes it.
	Listener net.Listener

	nextID atomic.Uint64
}

// Run binds the listener and serves until ctx is cancelled or Accept
// fails permanently.  Either way it stops accepting, aborts every open
// session and waits up to GracePeriod for them to flush their files.
func (m *ListenMode) Run(ctx context.Context) error {
	if err := os.MkdirAll(m.Session.OutputDir, 0o755); err != nil {
		return ingerr.WrapFS("mkdir", m.Session.OutputDir, err)
	}

	ln := m.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", m.Address); err != nil {
			return fmt.Errorf("listen on %s: %w", m.Address, err)
		}
	}
	defer ln.Close()

	m.Logger.Info("listening on %s, writing to %s", ln.Addr(), m.Session.OutputDir)
	if m.OnListen != nil {
		m.OnListen(ln.Addr())
	}

	if m.MetricsAddr != "" {
		stop, err := m.serveMetrics()
		if err != nil {
			return err
		}
		defer stop()
	}

	// Sessions run under ctx; cancelling it also closes the listener.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopClose := context.AfterFunc(ctx, func() { ln.Close() })
	defer stopClose()

	var sem chan struct{}
	if m.MaxConnections > 0 {
		sem = make(chan struct{}, m.MaxConnections)
	}

	var wg sync.WaitGroup
	err := m.acceptLoop(ctx, ln, sem, &wg)
	if err != nil {
		m.Logger.Error("%v; closing %d session(s)", err, m.Metrics.ActiveConnections())
	}
	cancel()

	m.Logger.Verbose("listener closed, waiting for %d session(s)", m.Metrics.ActiveConnections())
	werr := m.wait(&wg)
	m.Logger.Debug("final metrics: %s", m.Metrics.JSON())
	if werr != nil {
		return ingerr.Join(err, werr)
	}
	return err
}

func (m *ListenMode) acceptLoop(ctx context.Context, ln net.Listener, sem chan struct{}, wg *sync.WaitGroup) error {
	backoff := retry.AcceptBackoff()
	backoff.OnRetry = func(failures int, err error, wait time.Duration) {
		m.Logger.Warn("accept failed (%d in a row): %v; retrying in %s", failures, err, wait)
	}

	for {
		if sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}

		var conn net.Conn
		err := backoff.Retry(ctx, func() error {
			c, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return retry.Stop(ingerr.ErrShutdown)
				}
				if ingerr.IsRetryable(err) {
					return err
				}
				return retry.Stop(ingerr.Wrap("accept", ln.Addr().String(), err))
			}
			conn = c
			return nil
		})
		if err != nil {
			if sem != nil {
				<-sem
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		m.serve(ctx, conn, sem, wg)
	}
}

// serve starts the session for conn on a new goroutine.
func (m *ListenMode) serve(ctx context.Context, conn net.Conn, sem chan struct{}, wg *sync.WaitGroup) {
	cfg := m.Session
	cfg.ID = m.nextID.Add(1)
	sess := session.New(conn, cfg, m.Logger, m.Metrics)

	m.Metrics.ConnectionOpened()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if sem != nil {
				<-sem
			}
		}()
		defer m.Metrics.ConnectionClosed()

		err := sess.Run(ctx)
		if m.OnSessionEnd != nil {
			m.OnSessionEnd(sess, err)
		}
	}()
}

// wait blocks until every session has returned or the grace period
// has elapsed.
func (m *ListenMode) wait(wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if m.GracePeriod <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(m.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("shutdown: %d session(s) still running after %s",
			m.Metrics.ActiveConnections(), m.GracePeriod)
	}
}

// serveMetrics exposes the collector at /metrics.  The returned
// function shuts the server down.
func (m *ListenMode) serveMetrics() (func(), error) {
	ln, err := net.Listen("tcp", m.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", m.MetricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !ingerr.Is(err, http.ErrServerClosed) {
			m.Logger.Error("metrics server: %v", err)
		}
	}()
	m.Logger.Verbose("metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}, nil
}
