// Package permission answers whether lingobridge may open the microphone.
//
// A [Gate] is consulted on every capture start. Implementations range from a
// fixed answer to probing the capture binary, and [Cached] remembers a grant
// so the probe runs once.
package permission

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// Gate reports whether audio capture is permitted. A false result with a nil
// error is a denial; a non-nil error means the answer could not be obtained.
type Gate interface {
	Check(ctx context.Context) (bool, error)
}

// Static always returns the same answer.
type Static bool

// Check implements Gate.
func (s Static) Check(context.Context) (bool, error) { return bool(s), nil }

// Func adapts an ordinary function to Gate.
type Func func(ctx context.Context) (bool, error)

// Check implements Gate.
func (f Func) Check(ctx context.Context) (bool, error) { return f(ctx) }

// Executable grants capture when the named capture binary can be found on
// PATH. It never returns an error: a missing binary is a denial.
type Executable struct {
	Name string

	lookPath func(string) (string, error)
}

// NewExecutable returns a gate probing for binary.
func NewExecutable(binary string) *Executable {
	return &Executable{Name: binary, lookPath: exec.LookPath}
}

// Check implements Gate.
func (e *Executable) Check(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := e.lookPath(e.Name); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("permission: probe %s: %w", e.Name, err)
	}
	return true, nil
}

// Cached remembers the first grant of the wrapped gate. Denials and errors
// are not cached, so the next capture asks again.
type Cached struct {
	gate Gate

	mu      sync.Mutex
	granted bool
}

// NewCached wraps gate.
func NewCached(gate Gate) *Cached {
	return &Cached{gate: gate}
}

// Check implements Gate.
func (c *Cached) Check(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.granted {
		return true, nil
	}
	ok, err := c.gate.Check(ctx)
	if err != nil {
		return false, err
	}
	c.granted = ok
	return ok, nil
}

// Revoke forgets a cached grant.
func (c *Cached) Revoke() {
	c.mu.Lock()
	c.granted = false
	c.mu.Unlock()
}

// Mode names a gate configuration.
type Mode string

const (
	ModeAllow  Mode = "allow"
	ModeDeny   Mode = "deny"
	ModeBinary Mode = "binary"
)

// FromMode builds the gate for a configured mode. ModeBinary probes binary
// and caches the grant. An empty mode means ModeBinary.
func FromMode(mode Mode, binary string) (Gate, error) {
	switch mode {
	case ModeAllow:
		return Static(true), nil
	case ModeDeny:
		return Static(false), nil
	case ModeBinary, "":
		return NewCached(NewExecutable(binary)), nil
	default:
		return nil, fmt.Errorf("permission: unknown mode %q", mode)
	}
}
