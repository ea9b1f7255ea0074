// Package mock provides test doubles for letsim interfaces using function fields.
package mock

import (
	"context"

	"github.com/bunnhack/letsim"
)

// Interface compliance check.
var _ letsim.Provider = (*Provider)(nil)

// Provider is a test double for letsim.Provider.
// Set StreamFn before calling Stream.
type Provider struct {
	StreamFn func(ctx context.Context, req letsim.Request) (letsim.Stream, error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req letsim.Request) (letsim.Stream, error) {
	return p.StreamFn(ctx, req)
}
