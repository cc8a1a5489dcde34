package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tcpsink/internal/metrics"
	"tcpsink/internal/session"
	"tcpsink/util"
)

var start = time.Date(2024, time.March, 5, 14, 7, 9, 0, time.Local)

const ts = "20240305140709"

type harness struct {
	mode   *ListenMode
	addr   string
	ended  chan *session.Session
	result chan error
	cancel context.CancelFunc
}

func newMode(t *testing.T) *ListenMode {
	t.Helper()
	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)
	return &ListenMode{
		Address:     "127.0.0.1:0",
		GracePeriod: 2 * time.Second,
		Session: session.Config{
			IdleTimeout: 5 * time.Second,
			MaxFileSize: 1000,
			OutputDir:   t.TempDir(),
			SyncWrites:  true,
			Clock:       func() time.Time { return start },
		},
		Logger:  logger,
		Metrics: metrics.New(),
	}
}

// start runs mode in the background and waits until it is listening.
func startMode(t *testing.T, mode *ListenMode) *harness {
	t.Helper()
	h := &harness{
		mode:   mode,
		ended:  make(chan *session.Session, 16),
		result: make(chan error, 1),
	}
	bound := make(chan net.Addr, 1)
	mode.OnListen = func(a net.Addr) { bound <- a }
	mode.OnSessionEnd = func(s *session.Session, _ error) { h.ended <- s }

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.result <- mode.Run(ctx) }()

	select {
	case a := <-bound:
		h.addr = a.String()
	case err := <-h.result:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not start")
	}
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.result:
		case <-time.After(3 * time.Second):
			t.Error("server did not shut down in time")
		}
	})
	return h
}

func (h *harness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", h.addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func (h *harness) next(t *testing.T) *session.Session {
	t.Helper()
	select {
	case s := <-h.ended:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

func send(t *testing.T, conn net.Conn, data []byte) {
	t.Helper()
	if _, err := conn.Write(data); err != nil {
		t.Fatal(err)
	}
	conn.Close()
}

func TestListenMode_Rotation(t *testing.T) {
	mode := newMode(t)
	mode.Session.MaxFileSize = 10
	h := startMode(t, mode)

	data := []byte("The quick brown fox jumps")
	send(t, h.dial(t), data)
	s := h.next(t)

	if s.ID() != 1 {
		t.Errorf("first client id = %d, want 1", s.ID())
	}
	if s.Reason() != session.ReasonEOF {
		t.Errorf("Reason = %v, want eof", s.Reason())
	}

	dir := filepath.Join(mode.Session.OutputDir, "cnx_"+ts)
	var all []byte
	for i, name := range []string{ts, ts + "_2", ts + "_3"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("file %d: %v", i, err)
		}
		if want := []int{10, 10, 5}[i]; len(b) != want {
			t.Errorf("%s has %d bytes, want %d", name, len(b), want)
		}
		all = append(all, b...)
	}
	if !bytes.Equal(all, data) {
		t.Errorf("concatenation = %q", all)
	}
}

// TestListenMode_SequentialConnections verifies each connection gets
// its own id and directory, even within the same clock second.
func TestListenMode_SequentialConnections(t *testing.T) {
	mode := newMode(t)
	h := startMode(t, mode)

	send(t, h.dial(t), []byte("first"))
	s1 := h.next(t)
	send(t, h.dial(t), []byte("second"))
	s2 := h.next(t)

	if s1.ID() != 1 || s2.ID() != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", s1.ID(), s2.ID())
	}
	if s1.Dir() == s2.Dir() {
		t.Fatalf("sessions share directory %s", s1.Dir())
	}
	if filepath.Base(s2.Dir()) != "cnx_"+ts+"_2" {
		t.Errorf("second directory = %s", s2.Dir())
	}
	for s, want := range map[*session.Session]string{s1: "first", s2: "second"} {
		b, err := os.ReadFile(filepath.Join(s.Dir(), ts))
		if err != nil || string(b) != want {
			t.Errorf("client %d: content %q, %v", s.ID(), b, err)
		}
	}
	if mode.Metrics.TotalConnections() != 2 {
		t.Errorf("TotalConnections = %d", mode.Metrics.TotalConnections())
	}
}

func TestListenMode_ConcurrentClients(t *testing.T) {
	mode := newMode(t)
	h := startMode(t, mode)

	const clients = 5
	conns := make([]net.Conn, clients)
	for i := range conns {
		conns[i] = h.dial(t)
	}
	for i, c := range conns {
		send(t, c, []byte(fmt.Sprintf("payload-%d", i)))
	}

	var ids []int
	got := map[string]bool{}
	for i := 0; i < clients; i++ {
		s := h.next(t)
		ids = append(ids, int(s.ID()))
		b, err := os.ReadFile(s.Files()[0].Path)
		if err != nil {
			t.Fatal(err)
		}
		got[string(b)] = true
	}
	sort.Ints(ids)
	for i, id := range ids {
		if id != i+1 {
			t.Errorf("ids = %v, want 1..%d", ids, clients)
			break
		}
	}
	for i := 0; i < clients; i++ {
		if !got[fmt.Sprintf("payload-%d", i)] {
			t.Errorf("payload-%d missing", i)
		}
	}
}

func TestListenMode_IdleTimeout(t *testing.T) {
	mode := newMode(t)
	mode.Session.IdleTimeout = 50 * time.Millisecond
	h := startMode(t, mode)

	conn := h.dial(t)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("client read = %v, want EOF from server close", err)
	}
	if s := h.next(t); s.Reason() != session.ReasonIdleTimeout {
		t.Errorf("Reason = %v, want idle timeout", s.Reason())
	}
}

func TestListenMode_Shutdown(t *testing.T) {
	mode := newMode(t)
	h := startMode(t, mode)

	conn := h.dial(t)
	defer conn.Close()
	if _, err := conn.Write([]byte("partial")); err != nil {
		t.Fatal(err)
	}
	// Wait for the bytes to land before shutting down.
	deadline := time.Now().Add(3 * time.Second)
	for mode.Metrics.TotalBytesIn() < 7 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.cancel()
	select {
	case err := <-h.result:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
		h.result <- err // let Cleanup observe it
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	s := h.next(t)
	if s.Reason() != session.ReasonShutdown {
		t.Errorf("Reason = %v, want shutdown", s.Reason())
	}
	if files := s.Files(); len(files) != 1 || files[0].Size != 7 {
		t.Errorf("files = %+v", files)
	}
}

// TestListenMode_MaxConnections verifies a second client is not served
// until the first one's slot is released.
func TestListenMode_MaxConnections(t *testing.T) {
	mode := newMode(t)
	mode.MaxConnections = 1
	h := startMode(t, mode)

	first := h.dial(t)
	first.Write([]byte("a"))  //nolint:errcheck
	second := h.dial(t)       // completes in the kernel backlog
	second.Write([]byte("b")) //nolint:errcheck

	time.Sleep(150 * time.Millisecond)
	if n := mode.Metrics.TotalConnections(); n != 1 {
		t.Fatalf("TotalConnections = %d while first client open, want 1", n)
	}

	first.Close()
	if s := h.next(t); s.ID() != 1 {
		t.Errorf("first session id = %d", s.ID())
	}
	second.Close()
	if s := h.next(t); s.ID() != 2 || s.BytesReceived() != 1 {
		t.Errorf("second session id = %d bytes = %d", s.ID(), s.BytesReceived())
	}
}

func TestListenMode_MetricsEndpoint(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	mode := newMode(t)
	mode.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", port)
	h := startMode(t, mode)

	send(t, h.dial(t), []byte("hello"))
	h.next(t)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"tcpsink_connections_total 1",
		"tcpsink_received_bytes_total 5",
		"tcpsink_files_opened_total 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestListenMode_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	mode := newMode(t)
	mode.Address = ln.Addr().String()
	if err := mode.Run(context.Background()); err == nil {
		t.Fatal("expected error binding an address in use")
	}
}

// failingListener accepts one real connection and then fails every
// Accept with err.
type failingListener struct {
	net.Listener
	err      error
	accepted atomic.Int32
}

func (l *failingListener) Accept() (net.Conn, error) {
	if l.accepted.Add(1) > 1 {
		return nil, l.err
	}
	return l.Listener.Accept()
}

// TestListenMode_FatalAcceptError verifies a permanent Accept failure
// ends Run with that error, aborting open sessions even without a
// grace period.
func TestListenMode_FatalAcceptError(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	fatal := errors.New("listener descriptor invalidated")
	ln := &failingListener{Listener: inner, err: fatal}

	mode := newMode(t)
	mode.GracePeriod = 0
	mode.Listener = ln
	ended := make(chan *session.Session, 1)
	mode.OnSessionEnd = func(s *session.Session, _ error) { ended <- s }

	result := make(chan error, 1)
	go func() { result <- mode.Run(context.Background()) }()

	conn, err := net.DialTimeout("tcp", inner.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case err := <-result:
		if !errors.Is(err, fatal) {
			t.Errorf("Run = %v, want %v", err, fatal)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after a fatal accept error")
	}

	select {
	case s := <-ended:
		if s.Reason() != session.ReasonShutdown {
			t.Errorf("Reason = %v, want shutdown", s.Reason())
		}
	default:
		t.Fatal("open session was not finished before Run returned")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("client read = %v, want EOF", err)
	}
	if _, err := inner.Accept(); err == nil {
		t.Error("listener still open after Run returned")
	}
}
