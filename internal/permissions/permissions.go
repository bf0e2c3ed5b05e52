// Package permissions answers whether the host has granted the agent a device capability.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type Capability string

const (
	Location   Capability = "location"
	Microphone Capability = "microphone"
	Camera     Capability = "camera"
	Storage    Capability = "storage"
	Contacts   Capability = "contacts"
	SMS        Capability = "sms"
)

var ErrDenied = errors.New("permission denied")

// Gateway queries and requests OS-level grants.
type Gateway interface {
	Check(ctx context.Context, c Capability) (bool, error)
	Request(ctx context.Context, c Capability) (bool, error)
}

// StaticGateway grants exactly the capabilities it was built with. Grants can
// change at runtime through Grant and Revoke.
type StaticGateway struct {
	mu      sync.RWMutex
	granted map[Capability]bool
}

func NewStaticGateway(granted []string) *StaticGateway {
	g := &StaticGateway{granted: make(map[Capability]bool, len(granted))}
	for _, name := range granted {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			g.granted[Capability(name)] = true
		}
	}
	return g
}

func (g *StaticGateway) Check(ctx context.Context, c Capability) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.granted[c], nil
}

// Request on a static gateway cannot prompt anyone, so it reports the current grant.
func (g *StaticGateway) Request(ctx context.Context, c Capability) (bool, error) {
	return g.Check(ctx, c)
}

func (g *StaticGateway) Grant(c Capability) {
	g.mu.Lock()
	g.granted[c] = true
	g.mu.Unlock()
}

func (g *StaticGateway) Revoke(c Capability) {
	g.mu.Lock()
	delete(g.granted, c)
	g.mu.Unlock()
}

// Require requests c and returns an error wrapping ErrDenied when it is refused.
func Require(ctx context.Context, g Gateway, c Capability) error {
	ok, err := g.Request(ctx, c)
	if err != nil {
		return fmt.Errorf("request %s permission: %w", c, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", c, ErrDenied)
	}
	return nil
}

// RequestAll requests each capability and reports the ones that were refused.
func RequestAll(ctx context.Context, g Gateway, caps ...Capability) ([]Capability, error) {
	var denied []Capability
	for _, c := range caps {
		ok, err := g.Request(ctx, c)
		if err != nil {
			return denied, fmt.Errorf("request %s permission: %w", c, err)
		}
		if !ok {
			denied = append(denied, c)
		}
	}
	return denied, nil
}
