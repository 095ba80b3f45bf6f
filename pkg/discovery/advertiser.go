package discovery

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser announces a PV server on the local network.
type Advertiser interface {
	// Advertise starts announcing the server. A running advertisement
	// for the same instance is replaced.
	Advertise(info *ServerInfo) error

	// Update refreshes the TXT records of the running advertisement.
	Update(info *ServerInfo) error

	// Stop withdraws the advertisement.
	Stop()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface selects one network interface by name. Empty means all
	// interfaces.
	Interface string

	// TTL is the DNS record TTL. Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: 120 * time.Second,
	}
}

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) (*MDNSAdvertiser, error) {
	return &MDNSAdvertiser{config: config}, nil
}

// getInterfaces returns the interfaces to advertise on, nil for all.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise implements Advertiser.
func (a *MDNSAdvertiser) Advertise(info *ServerInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	instanceName := info.Name
	if instanceName == "" {
		instanceName = fmt.Sprintf("pva-%d", info.Port)
	}
	if len(instanceName) > MaxInstanceNameLen {
		instanceName = instanceName[:MaxInstanceNameLen]
	}

	txtStrings := TXTRecordsToStrings(EncodeServerTXT(info))

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		int(info.Port),
		txtStrings,
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register pva service: %w", err)
	}

	a.server = server
	return nil
}

// Update implements Advertiser.
func (a *MDNSAdvertiser) Update(info *ServerInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotFound
	}
	a.server.SetText(TXTRecordsToStrings(EncodeServerTXT(info)))
	return nil
}

// Stop implements Advertiser.
func (a *MDNSAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Ensure MDNSAdvertiser implements Advertiser.
var _ Advertiser = (*MDNSAdvertiser)(nil)
