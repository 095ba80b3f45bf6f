package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// BrowseCallback is invoked when a server appears, changes, or disappears.
// On removal the service carries the last known state.
type BrowseCallback func(service *ServerService, removed bool)

// Browser discovers PV servers on the local network.
type Browser interface {
	// Browse watches for servers in the background until ctx is
	// cancelled, invoking callback for every appearance, update, and
	// removal.
	Browse(ctx context.Context, callback BrowseCallback) error

	// FindFirst blocks until the first server appears or ctx expires.
	FindFirst(ctx context.Context) (*ServerService, error)
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface selects one network interface by name. Empty means all
	// interfaces.
	Interface string
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu       sync.Mutex
	services map[string]*ServerService
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{
		config:   config,
		services: make(map[string]*ServerService),
	}
}

func (b *MDNSBrowser) clientOptions() []zeroconf.ClientOption {
	if b.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(b.config.Interface)
	if err != nil {
		return nil
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*iface})}
}

// Browse implements Browser.
func (b *MDNSBrowser) Browse(ctx context.Context, callback BrowseCallback) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go b.processEntries(ctx, entries, removed, callback)

	// Browsing blocks until ctx is cancelled.
	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.clientOptions()...)
	}()

	return nil
}

func (b *MDNSBrowser) processEntries(
	ctx context.Context,
	entries, removed <-chan *zeroconf.ServiceEntry,
	callback BrowseCallback,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if service := b.addEntry(entry); service != nil {
				callback(service, false)
			}
		case entry, ok := <-removed:
			if !ok {
				return
			}
			if service := b.removeEntry(entry); service != nil {
				callback(service, true)
			}
		}
	}
}

// addEntry merges a discovered entry into the known services, returning
// the merged service, or nil if the entry could not be decoded.
func (b *MDNSBrowser) addEntry(entry *zeroconf.ServiceEntry) *ServerService {
	service := entryToServer(entry)
	if service == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.services[service.InstanceName]; ok {
		service.Addresses = mergeAddresses(existing.Addresses, service.Addresses)
	}
	b.services[service.InstanceName] = service
	return service
}

// removeEntry drops a removed entry's addresses. The service is
// forgotten once no addresses remain.
func (b *MDNSBrowser) removeEntry(entry *zeroconf.ServiceEntry) *ServerService {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.services[entry.Instance]
	if !ok {
		return nil
	}

	gone := entryAddresses(entry)
	existing.Addresses = removeAddresses(existing.Addresses, gone)
	if len(existing.Addresses) == 0 || len(gone) == 0 {
		delete(b.services, entry.Instance)
	}
	return existing
}

// Services returns a snapshot of the currently known servers.
func (b *MDNSBrowser) Services() []*ServerService {
	b.mu.Lock()
	defer b.mu.Unlock()

	services := make([]*ServerService, 0, len(b.services))
	for _, s := range b.services {
		services = append(services, s)
	}
	return services
}

// FindFirst implements Browser.
func (b *MDNSBrowser) FindFirst(ctx context.Context) (*ServerService, error) {
	browseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan *ServerService, 1)
	err := b.Browse(browseCtx, func(service *ServerService, removed bool) {
		if removed {
			return
		}
		select {
		case found <- service:
		default:
		}
	})
	if err != nil {
		return nil, err
	}

	select {
	case service := <-found:
		return service, nil
	case <-ctx.Done():
		return nil, ErrNotFound
	}
}

// entryToServer converts a zeroconf entry into a ServerService, or nil
// if its TXT records are not a valid server announcement.
func entryToServer(entry *zeroconf.ServiceEntry) *ServerService {
	info, err := DecodeServerTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}

	return &ServerService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    entryAddresses(entry),
		Version:      info.Version,
		PVCount:      info.PVCount,
	}
}

// entryAddresses collects the IPv4 and IPv6 addresses of an entry.
func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	var addresses []string
	for _, ip := range entry.AddrIPv4 {
		addresses = append(addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addresses = append(addresses, ip.String())
	}
	return addresses
}

// mergeAddresses unions two address lists, preserving existing order.
func mergeAddresses(existing, incoming []string) []string {
	merged := make([]string, len(existing))
	copy(merged, existing)
	for _, addr := range incoming {
		known := false
		for _, e := range merged {
			if e == addr {
				known = true
				break
			}
		}
		if !known {
			merged = append(merged, addr)
		}
	}
	return merged
}

// removeAddresses drops the given addresses from the list.
func removeAddresses(existing, gone []string) []string {
	var kept []string
	for _, addr := range existing {
		drop := false
		for _, g := range gone {
			if g == addr {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, addr)
		}
	}
	return kept
}

// Ensure MDNSBrowser implements Browser.
var _ Browser = (*MDNSBrowser)(nil)
