package service

import (
	"strings"

	"hls-relay-go/internal/config"
)

// OriginPolicy decides whether a caller is permitted to use the relay. It is
// built once from static configuration and read-only afterwards.
type OriginPolicy struct {
	enabled bool
	exact   map[string]bool
	list    []string
}

// NewOriginPolicy creates an OriginPolicy from the relay configuration.
func NewOriginPolicy(cfg *config.Config) *OriginPolicy {
	exact := make(map[string]bool, len(cfg.Relay.AllowedOrigins))
	for _, o := range cfg.Relay.AllowedOrigins {
		exact[o] = true
	}
	return &OriginPolicy{
		enabled: cfg.Relay.RestrictOrigins,
		exact:   exact,
		list:    cfg.Relay.AllowedOrigins,
	}
}

// Allow applies the allow-list to the caller's Origin header (exact match)
// or, when Origin is absent, the Referer header (prefix match). With
// restriction disabled every caller is allowed; with it enabled and neither
// header present the caller is denied.
func (p *OriginPolicy) Allow(origin, referer string) bool {
	if !p.enabled {
		return true
	}
	if origin != "" {
		return p.exact[origin]
	}
	if referer != "" {
		for _, allowed := range p.list {
			if strings.HasPrefix(referer, allowed) {
				return true
			}
		}
	}
	return false
}
