package site

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// Registry holds the adapters for every configured marketplace.
type Registry struct {
	adapters []*Adapter
	index    map[string]*Adapter
}

var _ repository.SiteRegistry = (*Registry)(nil)

func NewRegistry(cfgs []Config, itemsPerPage int, logger *zap.Logger) (*Registry, error) {
	r := &Registry{index: make(map[string]*Adapter)}
	for _, cfg := range cfgs {
		a, err := NewAdapter(cfg, itemsPerPage, logger)
		if err != nil {
			return nil, err
		}
		for _, k := range []string{cfg.Key, cfg.Name} {
			k = strings.ToLower(k)
			if prev, dup := r.index[k]; dup && prev != a {
				return nil, fmt.Errorf("duplicate site %q", k)
			}
			r.index[k] = a
		}
		r.adapters = append(r.adapters, a)
	}
	return r, nil
}

// Lookup finds an adapter by display name or key, ignoring case.
func (r *Registry) Lookup(platform entity.PlatformID) (repository.SiteAdapter, bool) {
	a, ok := r.index[strings.ToLower(strings.TrimSpace(string(platform)))]
	if !ok {
		return nil, false
	}
	return a, true
}

// Platforms lists every platform in table order.
func (r *Registry) Platforms() []entity.PlatformID {
	out := make([]entity.PlatformID, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Platform())
	}
	return out
}

// Resolve maps user supplied names or keys to platform IDs. No names means all platforms.
func (r *Registry) Resolve(names []string) ([]entity.PlatformID, error) {
	if len(names) == 0 {
		return r.Platforms(), nil
	}
	out := make([]entity.PlatformID, 0, len(names))
	seen := make(map[entity.PlatformID]bool)
	for _, n := range names {
		a, ok := r.index[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown platform %q", n)
		}
		if !seen[a.Platform()] {
			seen[a.Platform()] = true
			out = append(out, a.Platform())
		}
	}
	return out, nil
}
