package runner

import (
	"bytes"
	"context"
	"os"

	"github.com/dimiro1/banner"
)

// State tracks where a daemon is in its lifecycle. Transitions only move
// forward: New -> Starting -> Running -> Draining -> Stopped.
type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run at the edges of the lifecycle. OnStart fires after the daemon
// enters Starting, OnStop after draining finishes.
type Hooks struct {
	OnStart func()
	OnStop  func()
}

// Drainer lets a daemon flush in-flight work before OnStop runs.
type Drainer interface {
	Drain() error
}

// DrainFunc adapts a plain function to the Drainer interface.
type DrainFunc func() error

func (f DrainFunc) Drain() error { return f() }

// Version is stamped by the build via -ldflags "-X .../pkg/runner.Version=...".
var Version = "dev"

// PrintBanner writes the startup banner with the daemon's name so logs from
// different binaries on the same box are easy to tell apart.
func PrintBanner(daemon string) {
	tpl := "{{ .Title \"BUD\" \"\" 0 }}\n" + daemon + " " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
