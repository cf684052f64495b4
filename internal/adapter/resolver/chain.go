package resolver

import (
	"context"
	"errors"

	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
)

// Supporter is implemented by resolvers that can tell up front whether a URL is theirs.
type Supporter interface {
	Supports(sourceURL string) bool
}

// Chain tries resolvers in order.
//
// A resolver implementing Supporter is skipped for URLs it does not support. The first
// successful answer wins. A live-stream rejection or a canceled context ends the chain
// immediately; any other error moves on to the next resolver.
type Chain struct {
	resolvers []ports.Resolver
}

// NewChain creates a chain. Nil resolvers are ignored.
func NewChain(resolvers ...ports.Resolver) *Chain {
	c := &Chain{}
	for _, r := range resolvers {
		if r != nil {
			c.resolvers = append(c.resolvers, r)
		}
	}
	return c
}

// Resolve implements ports.Resolver.
func (c *Chain) Resolve(ctx context.Context, sourceURL string, saveAsVideo bool) (*domain.ResolvedMedia, error) {
	var errs []error
	for _, r := range c.resolvers {
		if s, ok := r.(Supporter); ok && !s.Supports(sourceURL) {
			continue
		}
		media, err := r.Resolve(ctx, sourceURL, saveAsVideo)
		if err == nil {
			return media, nil
		}
		if errors.Is(err, domain.ErrLiveStreamNotAllowed) || ctx.Err() != nil {
			return nil, err
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil, domain.NewResolverError(sourceURL, "no resolver accepts this url", domain.ErrStreamNotFound)
	}
	if len(errs) == 1 {
		return nil, errs[0]
	}
	return nil, errors.Join(errs...)
}

var _ ports.Resolver = (*Chain)(nil)
