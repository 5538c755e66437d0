package gateway

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/klyr/promptguard/internal/config"
)

// Route binds a host and path prefix to an upstream and the profile that
// screens its traffic. ID is stable across reloads of the same file and is
// what decision logs and metrics refer to.
type Route struct {
	ID         string
	Host       string
	PathPrefix string
	Upstream   string
	Profile    string

	order int
}

type Router struct {
	routes []Route
}

// NewRouter orders routes by specificity: longer prefixes first, then
// host-pinned before wildcard, then declaration order.
func NewRouter(cfg *config.Config) (*Router, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	routes := make([]Route, len(cfg.Routes))
	for i, r := range cfg.Routes {
		routes[i] = Route{
			ID:         routeID(i),
			Host:       strings.ToLower(strings.TrimSpace(r.Match.Host)),
			PathPrefix: r.Match.PathPrefix,
			Upstream:   r.Upstream,
			Profile:    r.Profile,
			order:      i,
		}
	}
	slices.SortFunc(routes, compareSpecificity)

	return &Router{routes: routes}, nil
}

func compareSpecificity(a, b Route) int {
	if c := cmp.Compare(len(b.PathPrefix), len(a.PathPrefix)); c != 0 {
		return c
	}
	if pa, pb := a.Host != "", b.Host != ""; pa != pb {
		if pa {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.order, b.order)
}

// Match returns the most specific route for req. The request port is
// ignored when comparing hosts.
func (r *Router) Match(req *http.Request) (Route, bool) {
	if req == nil || req.URL == nil {
		return Route{}, false
	}

	host := strings.ToLower(hostOnly(req.Host))
	i := slices.IndexFunc(r.routes, func(route Route) bool {
		return (route.Host == "" || route.Host == host) && strings.HasPrefix(req.URL.Path, route.PathPrefix)
	})
	if i < 0 {
		return Route{}, false
	}
	return r.routes[i], true
}

func routeID(i int) string {
	return fmt.Sprintf("route-%d", i)
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
