// Package core is the orchestration layer.  It turns a validated
// Config into a running Mode: a listener that accepts connections and
// hands each one to its own session.
//
// Architecture layers (bottom → top):
//
//	naming / sink / idle  →  session  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of tcpsink.  It owns its full
// lifecycle from binding to teardown and returns when ctx is cancelled.
type Mode interface {
	Run(ctx context.Context) error
}
