package provider

import (
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/config"
	"github.com/sells-group/place-resolver/internal/resilience"
	"github.com/sells-group/place-resolver/pkg/flickr"
	"github.com/sells-group/place-resolver/pkg/nominatim"
	"github.com/sells-group/place-resolver/pkg/overpass"
	"github.com/sells-group/place-resolver/pkg/pinterest"
	"github.com/sells-group/place-resolver/pkg/reddit"
	"github.com/sells-group/place-resolver/pkg/wikipedia"
)

// DefaultUserAgent identifies the resolver to public APIs that require it.
const DefaultUserAgent = "place-resolver/1.0 (+https://github.com/sells-group/place-resolver)"

type builtin struct {
	priority int
	timeout  time.Duration
	rps      float64
	burst    int
	newSrc   func(pc config.ProviderConfig, hc *http.Client) Source
}

// builtins are the known providers and their defaults. Nominatim and
// Overpass publish a one request per second usage policy.
var builtins = map[string]builtin{
	"wikipedia": {
		priority: 10, timeout: 5 * time.Second, rps: 5, burst: 2,
		newSrc: func(pc config.ProviderConfig, hc *http.Client) Source {
			opts := []wikipedia.Option{wikipedia.WithHTTPClient(hc), wikipedia.WithUserAgent(pc.UserAgent)}
			if pc.BaseURL != "" {
				opts = append(opts, wikipedia.WithBaseURL(pc.BaseURL))
			}
			return NewWikipediaSource(wikipedia.NewClient(opts...))
		},
	},
	"flickr": {
		priority: 20, timeout: 5 * time.Second, rps: 2, burst: 1,
		newSrc: func(pc config.ProviderConfig, hc *http.Client) Source {
			opts := []flickr.Option{flickr.WithHTTPClient(hc), flickr.WithUserAgent(pc.UserAgent)}
			if pc.BaseURL != "" {
				opts = append(opts, flickr.WithBaseURL(pc.BaseURL))
			}
			return NewFlickrSource(flickr.NewClient(opts...))
		},
	},
	"pinterest": {
		priority: 25, timeout: 8 * time.Second, rps: 1, burst: 1,
		newSrc: func(pc config.ProviderConfig, hc *http.Client) Source {
			opts := []pinterest.Option{pinterest.WithHTTPClient(hc), pinterest.WithUserAgent(pc.UserAgent)}
			if pc.BaseURL != "" {
				opts = append(opts, pinterest.WithBaseURL(pc.BaseURL))
			}
			return NewPinterestSource(pinterest.NewClient(opts...))
		},
	},
	"reddit": {
		priority: 30, timeout: 8 * time.Second, rps: 1, burst: 2,
		newSrc: func(pc config.ProviderConfig, hc *http.Client) Source {
			opts := []reddit.Option{reddit.WithHTTPClient(hc), reddit.WithUserAgent(pc.UserAgent)}
			if pc.BaseURL != "" {
				opts = append(opts, reddit.WithBaseURL(pc.BaseURL))
			}
			return NewRedditSource(reddit.NewClient(opts...))
		},
	},
	"nominatim": {
		priority: 10, timeout: 5 * time.Second, rps: 1, burst: 1,
		newSrc: func(pc config.ProviderConfig, hc *http.Client) Source {
			return NewNominatimSource(newNominatim(pc, hc), "")
		},
	},
	"overpass": {
		priority: 10, timeout: 20 * time.Second, rps: 0.5, burst: 1,
		newSrc: func(pc config.ProviderConfig, hc *http.Client) Source {
			opts := []overpass.Option{overpass.WithHTTPClient(hc), overpass.WithUserAgent(pc.UserAgent)}
			if pc.BaseURL != "" {
				opts = append(opts, overpass.WithBaseURL(pc.BaseURL))
			}
			// The geocoding leg always goes to the public Nominatim endpoint.
			return NewRouteSource(newNominatim(config.ProviderConfig{UserAgent: pc.UserAgent}, hc), overpass.NewClient(opts...))
		},
	},
}

func newNominatim(pc config.ProviderConfig, hc *http.Client) nominatim.Client {
	opts := []nominatim.Option{nominatim.WithHTTPClient(hc), nominatim.WithUserAgent(pc.UserAgent)}
	if pc.BaseURL != "" {
		opts = append(opts, nominatim.WithBaseURL(pc.BaseURL))
	}
	return nominatim.NewClient(opts...)
}

// Names returns the known provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build constructs a registry of every known provider, applying the per-name
// overrides in cfgs. Providers absent from cfgs are registered with their
// defaults; an override naming an unknown provider is an error.
func Build(cfgs []config.ProviderConfig, hc *http.Client) (*Registry, error) {
	if hc == nil {
		hc = &http.Client{}
	}
	overrides := make(map[string]config.ProviderConfig, len(cfgs))
	for _, pc := range cfgs {
		if _, ok := builtins[pc.Name]; !ok {
			return nil, eris.Errorf("provider: unknown provider %q", pc.Name)
		}
		overrides[pc.Name] = pc
	}

	reg := NewRegistry()
	for _, name := range Names() {
		b := builtins[name]
		pc, ok := overrides[name]
		if !ok {
			pc = config.ProviderConfig{Name: name}
		}
		if !pc.IsEnabled() {
			continue
		}
		a, priority := b.adapter(pc, hc)
		reg.Register(a, priority)
	}
	return reg, nil
}

func (b builtin) adapter(pc config.ProviderConfig, hc *http.Client) (*Guarded, int) {
	if pc.UserAgent == "" {
		pc.UserAgent = DefaultUserAgent
	}
	s := Settings{
		Timeout: b.timeout,
		RPS:     b.rps,
		Burst:   b.burst,
	}
	if pc.TimeoutMs > 0 {
		s.Timeout = time.Duration(pc.TimeoutMs) * time.Millisecond
	}
	if pc.RPS > 0 {
		s.RPS = pc.RPS
	}
	if pc.Burst > 0 {
		s.Burst = pc.Burst
	}
	retries := -1
	if pc.Retries != nil {
		retries = *pc.Retries
	}
	s.Retry = resilience.FromRetryConfig(retries, 0, 0, pc.Name)
	s.Throttle = resilience.FromThrottleConfig(pc.BackoffBaseMs, pc.BackoffMaxMs)

	priority := b.priority
	if pc.Priority > 0 {
		priority = pc.Priority
	}
	return NewGuarded(b.newSrc(pc, hc), s), priority
}
