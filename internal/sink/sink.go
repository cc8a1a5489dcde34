// Package sink persists one session's byte stream into a sequence of
// size-bounded files.
package sink

import (
	"encoding/hex"
	"hash"
	"os"

	"golang.org/x/crypto/blake2b"

	ingerr "tcpsink/internal/errors"
	"tcpsink/internal/naming"
)

// FileInfo describes one file produced by a Sink.
type FileInfo struct {
	Path   string
	Size   int64
	Digest string // hex BLAKE2b-256 of the file contents
}

// Option configures a Sink.
type Option func(*FileSink)

// WithSync controls whether every Write is followed by an fsync.
// The default is true.
func WithSync(on bool) Option {
	return func(s *FileSink) { s.sync = on }
}

// WithOnOpen registers a callback invoked each time a file is created.
// rotation is false for the first file of the sink.
func WithOnOpen(fn func(path string, rotation bool)) Option {
	return func(s *FileSink) { s.onOpen = fn }
}

// FileSink is an io.WriteCloser that splits its input across files
// handed out by a naming.Policy, each at most maxSize bytes long.
//
// A FileSink is owned by a single goroutine.
type FileSink struct {
	policy  *naming.Policy
	maxSize int64
	sync    bool
	onOpen  func(path string, rotation bool)

	f       *os.File
	written int64
	sum     hash.Hash
	files   []FileInfo
	closed  bool
}

// New returns a sink writing through policy.  A maxSize of zero or
// less disables rotation.  No file is created until the first
// non-empty Write.
func New(policy *naming.Policy, maxSize int64, opts ...Option) *FileSink {
	s := &FileSink{
		policy:  policy,
		maxSize: maxSize,
		sync:    true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Write appends p to the output, rotating whenever the current file is
// full.  On error n reports how many bytes of p reached disk.
func (s *FileSink) Write(p []byte) (n int, err error) {
	if s.closed {
		return 0, ingerr.ErrSinkClosed
	}
	for n < len(p) {
		if s.f == nil || s.full() {
			if err := s.rotate(); err != nil {
				return n, err
			}
		}

		chunk := p[n:]
		if s.maxSize > 0 {
			if room := s.maxSize - s.written; int64(len(chunk)) > room {
				chunk = chunk[:room]
			}
		}

		w, err := s.f.Write(chunk)
		s.sum.Write(chunk[:w])
		s.written += int64(w)
		s.files[len(s.files)-1].Size = s.written
		n += w
		if err != nil {
			return n, ingerr.WrapFS("write", s.f.Name(), err)
		}
	}
	if s.sync && s.f != nil && n > 0 {
		if err := s.f.Sync(); err != nil {
			return n, ingerr.WrapFS("sync", s.f.Name(), err)
		}
	}
	return n, nil
}

func (s *FileSink) full() bool {
	return s.maxSize > 0 && s.written >= s.maxSize
}

// rotate finalises the current file, if any, and opens the next one.
func (s *FileSink) rotate() error {
	rotation := s.f != nil
	if err := s.finish(); err != nil {
		return err
	}

	path, err := s.policy.Next()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return ingerr.WrapFS("create", path, err)
	}
	sum, _ := blake2b.New256(nil)

	s.f = f
	s.sum = sum
	s.written = 0
	s.files = append(s.files, FileInfo{Path: path})
	if s.onOpen != nil {
		s.onOpen(path, rotation)
	}
	return nil
}

// finish syncs and closes the open file and records its digest.
func (s *FileSink) finish() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	s.files[len(s.files)-1].Digest = hex.EncodeToString(s.sum.Sum(nil))

	var errs []error
	if err := f.Sync(); err != nil {
		errs = append(errs, ingerr.WrapFS("sync", f.Name(), err))
	}
	if err := f.Close(); err != nil {
		errs = append(errs, ingerr.WrapFS("close", f.Name(), err))
	}
	return ingerr.Join(errs...)
}

// Close flushes and closes the open file.  Calls after the first are
// no-ops.
func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.finish()
}

// Files returns every file produced so far, in creation order.  The
// digest of a file still open reflects the bytes written to it so far.
func (s *FileSink) Files() []FileInfo {
	out := make([]FileInfo, len(s.files))
	copy(out, s.files)
	if s.f != nil {
		out[len(out)-1].Digest = hex.EncodeToString(s.sum.Sum(nil))
	}
	return out
}
