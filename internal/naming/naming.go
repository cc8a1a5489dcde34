// Package naming turns a session's start time into the directory and
// file names its bytes are persisted under.
//
// Layout:
//
//	cnx_<YYYYMMDDhhmmss>[_<n>]/
//	    [<prefix>_]<YYYYMMDDhhmmss>[_<file_id>]
//
// The directory suffix n starts at 2 and is only used when an earlier
// session already claimed the plain name in the same clock second.  The
// file suffix is omitted for the first file of a session.
package naming

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	ingerr "tcpsink/internal/errors"
)

// TimestampLayout has one-second granularity.
const TimestampLayout = "20060102150405"

// DirPrefix starts every session directory name.
const DirPrefix = "cnx_"

// Timestamp formats t as YYYYMMDDhhmmss in local time.
func Timestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// DirName returns the directory name for the given attempt (1-based).
func DirName(ts string, attempt int) string {
	if attempt <= 1 {
		return DirPrefix + ts
	}
	return DirPrefix + ts + "_" + strconv.Itoa(attempt)
}

// FileName returns the name of file fileID (1-based) within a session
// directory.
func FileName(prefix, ts string, fileID int) string {
	name := ts
	if prefix != "" {
		name = prefix + "_" + ts
	}
	if fileID > 1 {
		name += "_" + strconv.Itoa(fileID)
	}
	return name
}

// Policy hands out the sequence of file paths for one session.  It is
// owned by a single goroutine and is not safe for concurrent use.
type Policy struct {
	baseDir string
	prefix  string
	ts      string

	fileID int
	dir    string // resolved session directory, empty until first use
}

// NewPolicy returns a Policy for a session started at start.
func NewPolicy(baseDir, prefix string, start time.Time) *Policy {
	if baseDir == "" {
		baseDir = "."
	}
	return &Policy{
		baseDir: baseDir,
		prefix:  prefix,
		ts:      Timestamp(start),
	}
}

// FileID returns the id of the most recently issued file, 0 before
// the first call to Next.
func (p *Policy) FileID() int { return p.fileID }

// Resolved returns the session directory, or "" if it has not been
// created yet.
func (p *Policy) Resolved() string { return p.dir }

// Dir returns the session directory, creating it on first use.
//
// Candidates cnx_<ts>, cnx_<ts>_2, cnx_<ts>_3, ... are tried in order.
// Each attempt is a single exclusive mkdir, so existence check and
// creation cannot race with another session or process: EEXIST moves
// on to the next suffix, anything else is a filesystem error.  The
// first success is kept for the lifetime of the Policy.
func (p *Policy) Dir() (string, error) {
	if p.dir != "" {
		return p.dir, nil
	}
	for attempt := 1; ; attempt++ {
		candidate := filepath.Join(p.baseDir, DirName(p.ts, attempt))
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			p.dir = candidate
			return p.dir, nil
		}
		if !ingerr.Is(err, fs.ErrExist) {
			return "", ingerr.WrapFS("mkdir", candidate, err)
		}
	}
}

// Next advances the file id and returns the full path of the next
// output file.  The directory is resolved on the first call.
func (p *Policy) Next() (string, error) {
	dir, err := p.Dir()
	if err != nil {
		return "", err
	}
	p.fileID++
	return filepath.Join(dir, FileName(p.prefix, p.ts, p.fileID)), nil
}
