// Package session drives a single client connection from accept to
// close: every byte the peer sends is persisted through a rotating
// file sink, and the connection is torn down after a period without
// traffic.
//
// A Session is run by exactly one goroutine.  The only work done on
// other goroutines is aborting it: the idle timer and context
// cancellation both record a reason and close the socket, which makes
// the blocked Read return.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ingerr "tcpsink/internal/errors"
	"tcpsink/internal/idle"
	"tcpsink/internal/metrics"
	"tcpsink/internal/naming"
	"tcpsink/internal/sink"
	"tcpsink/util"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateReading State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reason records why a Session ended.
type Reason int32

const (
	ReasonNone Reason = iota
	ReasonEOF
	ReasonIdleTimeout
	ReasonShutdown
	ReasonTransportError
	ReasonFilesystemError
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonEOF:
		return "eof"
	case ReasonIdleTimeout:
		return "idle timeout"
	case ReasonShutdown:
		return "shutdown"
	case ReasonTransportError:
		return "transport error"
	case ReasonFilesystemError:
		return "filesystem error"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Config is copied into each Session and never changes afterwards.
type Config struct {
	ID          uint64
	IdleTimeout time.Duration // <= 0 disables the idle timer
	MaxFileSize int64         // <= 0 disables rotation
	Prefix      string
	OutputDir   string
	SyncWrites  bool

	// ReadBufferSize caps the size of a single read.  Zero uses
	// util.DefaultBufSize.
	ReadBufferSize int

	// Clock supplies the session start time.  Nil means time.Now.
	Clock func() time.Time
}

// Session is one client connection and its output files.
type Session struct {
	conn    net.Conn
	cfg     Config
	log     *util.Logger
	metrics *metrics.Collector

	state     atomic.Int32
	reason    atomic.Int32
	bytes     atomic.Int64
	closeOnce sync.Once
	started   atomic.Bool

	files []sink.FileInfo // set when Run returns
	dir   string
}

// New returns a Session for conn.  metrics may be nil.
func New(conn net.Conn, cfg Config, logger *util.Logger, m *metrics.Collector) *Session {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Session{
		conn:    conn,
		cfg:     cfg,
		log:     logger.With(fmt.Sprintf("client %d", cfg.ID)),
		metrics: m,
	}
}

// ID returns the client id.
func (s *Session) ID() uint64 { return s.cfg.ID }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Reason returns why the session ended, or ReasonNone while it runs.
func (s *Session) Reason() Reason { return Reason(s.reason.Load()) }

// BytesReceived returns the number of bytes read from the peer.
func (s *Session) BytesReceived() int64 { return s.bytes.Load() }

// Files returns the files written by the session.  It is only
// populated once Run has returned.
func (s *Session) Files() []sink.FileInfo { return s.files }

// Dir returns the session directory, or "" if no data arrived.  Like
// Files it is only valid once Run has returned.
func (s *Session) Dir() string { return s.dir }

// Run reads from the connection until end of stream, idle timeout,
// context cancellation or an error.  Idle timeout, shutdown and a clean
// end of stream return nil.  Run may be called only once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ingerr.ErrSessionClosed
	}

	policy := naming.NewPolicy(s.cfg.OutputDir, s.cfg.Prefix, s.cfg.Clock())
	out := sink.New(policy, s.cfg.MaxFileSize,
		sink.WithSync(s.cfg.SyncWrites),
		sink.WithOnOpen(func(path string, rotation bool) {
			s.metrics.FileOpened(rotation)
			s.log.Verbose("writing %s", path)
		}),
	)
	timer := idle.New(func() { s.abort(ReasonIdleTimeout) })
	stop := context.AfterFunc(ctx, func() { s.abort(ReasonShutdown) })

	defer func() {
		stop()
		timer.Stop()
		s.closeConn()
		if err := out.Close(); err != nil {
			s.log.Error("closing output: %v", err)
		}
		s.files = out.Files()
		s.dir = policy.Resolved()
		for _, fi := range s.files {
			s.log.Verbose("%s: %d bytes, blake2b-256 %s", fi.Path, fi.Size, fi.Digest)
		}
		s.state.Store(int32(StateClosed))
		s.log.Info("closed (%s): %d bytes in %d file(s)",
			s.Reason(), s.BytesReceived(), len(s.files))
	}()

	s.log.Info("connected from %s", util.PeerAddr(s.conn))

	bp := util.GetBuf(s.cfg.ReadBufferSize)
	defer util.PutBuf(bp)
	buf := *bp

	timer.Arm(s.cfg.IdleTimeout)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			timer.Arm(s.cfg.IdleTimeout)
			s.bytes.Add(int64(n))
			s.metrics.BytesReceived(int64(n))
			s.log.Debug("received %d bytes", n)
			if _, werr := out.Write(buf[:n]); werr != nil {
				return s.fail(ReasonFilesystemError, werr)
			}
		}
		if err != nil {
			return s.readDone(err)
		}
	}
}

// readDone maps the error that ended the read loop to a reason.
func (s *Session) readDone(err error) error {
	s.state.Store(int32(StateClosing))

	// An abort recorded by the timer or the context wins over whatever
	// error the closed socket surfaced.
	switch r := s.Reason(); r {
	case ReasonIdleTimeout:
		s.metrics.IdleTimeout()
		s.log.Verbose("%v after %s, closing", ingerr.ErrIdleTimeout, s.cfg.IdleTimeout)
		return nil
	case ReasonShutdown:
		s.log.Verbose("%v, closing", ingerr.ErrShutdown)
		return nil
	}

	switch ingerr.Classify(err) {
	case ingerr.KindEOF:
		s.reason.CompareAndSwap(int32(ReasonNone), int32(ReasonEOF))
		s.log.Verbose("peer closed the connection")
		return nil
	default:
		return s.fail(ReasonTransportError,
			ingerr.Wrap("read", util.PeerAddr(s.conn), err))
	}
}

func (s *Session) fail(r Reason, err error) error {
	s.state.Store(int32(StateClosing))
	s.reason.CompareAndSwap(int32(ReasonNone), int32(r))
	switch r {
	case ReasonFilesystemError:
		s.metrics.RecordFilesystemError(err.Error())
	default:
		s.metrics.RecordTransportError(err.Error())
	}
	s.log.Error("%v", err)
	return err
}

// abort records r if no reason is set yet and closes the socket.  Safe
// to call from any goroutine.
func (s *Session) abort(r Reason) {
	s.reason.CompareAndSwap(int32(ReasonNone), int32(r))
	s.closeConn()
}

func (s *Session) closeConn() {
	s.closeOnce.Do(func() {
		if s.conn != nil {
			s.conn.Close()
		}
	})
}
