package pool

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// srvResolver is the subset of net.Resolver the discovery code needs.
type srvResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// Discovery locates directory servers for a domain through DNS SRV records.
// LDAPS records are preferred over plain LDAP; when neither service is
// published the domain itself is tried on the standard ports.
type Discovery struct {
	resolver srvResolver
	log      zerolog.Logger
}

// NewDiscovery returns a Discovery backed by the default resolver.
func NewDiscovery(log zerolog.Logger) *Discovery {
	return &Discovery{
		resolver: net.DefaultResolver,
		log:      log.With().Str("component", "discovery").Logger(),
	}
}

type discoveredServer struct {
	host     string
	port     int
	secure   bool
	priority int
	weight   int
}

func (s discoveredServer) url() string {
	scheme := "ldap"
	if s.secure {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.host, s.port)
}

// DiscoverURLs resolves the SRV records for a domain and returns server URLs
// ordered for failover. The first LDAPS service found stops the search.
func (d *Discovery) DiscoverURLs(ctx context.Context, domain string) ([]string, error) {
	if domain == "" {
		return nil, fmt.Errorf("discovery domain cannot be empty")
	}

	services := []struct {
		name   string
		secure bool
	}{
		{"_ldaps._tcp." + domain, true},
		{"_ldap._tcp." + domain, false},
	}

	var servers []discoveredServer
	for _, svc := range services {
		found, err := d.lookup(ctx, svc.name, svc.secure)
		if err != nil {
			d.log.Debug().Str("service", svc.name).Err(err).Msg("SRV lookup failed")
			continue
		}
		servers = append(servers, found...)
		if svc.secure && len(found) > 0 {
			break
		}
	}

	if len(servers) == 0 {
		d.log.Debug().Str("domain", domain).Msg("no SRV records, falling back to standard ports")
		servers = []discoveredServer{
			{host: domain, port: 636, secure: true, weight: 100},
			{host: domain, port: 389, priority: 1, weight: 100},
		}
	}

	orderByPreference(servers)

	urls := make([]string, len(servers))
	for i, s := range servers {
		urls[i] = s.url()
	}
	d.log.Debug().Str("domain", domain).Strs("urls", urls).Msg("server discovery completed")
	return urls, nil
}

func (d *Discovery) lookup(ctx context.Context, service string, secure bool) ([]discoveredServer, error) {
	_, records, err := d.resolver.LookupSRV(ctx, "", "", service)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup for %s: %w", service, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records for %s", service)
	}

	servers := make([]discoveredServer, 0, len(records))
	for _, srv := range records {
		servers = append(servers, discoveredServer{
			host:     strings.TrimSuffix(srv.Target, "."),
			port:     int(srv.Port),
			secure:   secure,
			priority: int(srv.Priority),
			weight:   int(srv.Weight),
		})
	}
	return servers, nil
}

// orderByPreference sorts by RFC 2782 priority, then by descending weight
// within the same priority.
func orderByPreference(servers []discoveredServer) {
	sort.SliceStable(servers, func(i, j int) bool {
		if servers[i].priority != servers[j].priority {
			return servers[i].priority < servers[j].priority
		}
		return servers[i].weight > servers[j].weight
	})
}
