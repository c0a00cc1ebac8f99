// Package symbols maps a master's symbol name onto a name tradable on a
// follower's broker.
package symbols

import (
	"context"
	"fmt"
	"time"

	"CopyFabric/internal/service/cache"
	"CopyFabric/pkg/logger"
)

// Selector is the broker capability the resolver probes with.
type Selector interface {
	// SymbolSelect reports whether name exists and makes it visible.
	SymbolSelect(ctx context.Context, name string) bool
	Symbols(ctx context.Context, contains string) ([]string, error)
}

const (
	DefaultCacheTTL = 5 * time.Minute
	minFuzzyLen     = 3
)

type Resolver struct {
	cache *cache.TTLCache[string]
	ttl   time.Duration
	log   *logger.Logger
}

type Option func(*Resolver)

// WithCacheTTL sets how long a resolution stays cached. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cache: cache.NewTTLCache[string](),
		ttl:   DefaultCacheTTL,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the broker-local name for raw. scope identifies the broker
// session (terminal and login) the cached answer belongs to.
func (r *Resolver) Resolve(ctx context.Context, sel Selector, scope, raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	key := fmt.Sprintf("%s|%s", scope, raw)
	if r.ttl > 0 {
		if name, ok := r.cache.Get(key); ok && sel.SymbolSelect(ctx, name) {
			return name, true
		}
	}

	name, ok := r.probe(ctx, sel, raw)
	if !ok {
		r.log.Warn("symbol not resolved", logger.String("symbol", raw), logger.String("scope", scope))
		return "", false
	}
	if name != raw {
		r.log.Debug("symbol mapped", logger.String("from", raw), logger.String("to", name))
	}
	if r.ttl > 0 {
		r.cache.Set(key, name, r.ttl)
	}
	return name, true
}

type prober struct {
	ctx   context.Context
	sel   Selector
	tried map[string]bool
}

func (p *prober) try(name string) bool {
	if name == "" || p.tried[name] {
		return false
	}
	p.tried[name] = true
	return p.sel.SymbolSelect(p.ctx, name)
}

// withSuffixes tries name followed by name+suffix for every known suffix.
func (p *prober) withSuffixes(name string) (string, bool) {
	for _, sfx := range Suffixes {
		if p.try(name + sfx) {
			return name + sfx, true
		}
	}
	return "", false
}

func (r *Resolver) probe(ctx context.Context, sel Selector, raw string) (string, bool) {
	p := &prober{ctx: ctx, sel: sel, tried: make(map[string]bool)}

	if p.try(raw) {
		return raw, true
	}
	if name, ok := p.withSuffixes(raw); ok {
		return name, true
	}

	bases := BaseCandidates(raw)
	for _, base := range bases {
		if p.try(base) {
			return base, true
		}
		if name, ok := p.withSuffixes(base); ok {
			return name, true
		}
		syns := Synonyms(base)
		for _, syn := range syns {
			if name, ok := p.withSuffixes(syn); ok {
				return name, true
			}
		}
		roots := append([]string{base}, syns...)
		for _, root := range roots {
			for _, name := range RollCandidates(root) {
				if p.try(name) {
					return name, true
				}
			}
		}
	}

	needle := shortest(bases)
	if len(needle) < minFuzzyLen {
		return "", false
	}
	names, err := sel.Symbols(ctx, needle)
	if err != nil {
		r.log.Warn("symbol listing failed", logger.String("contains", needle), logger.Error(err))
		return "", false
	}
	for _, name := range names {
		if sel.SymbolSelect(ctx, name) {
			return name, true
		}
	}
	return "", false
}
