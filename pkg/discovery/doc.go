// Package discovery implements mDNS/DNS-SD discovery for PV servers.
//
// Servers advertise a single service type (_pva._tcp) on the local
// network. Instance names default to pva-<port> and are truncated to
// the DNS label limit. TXT records carry the protocol version (ver)
// and the number of hosted PVs (pvs).
//
// # Advertising
//
//	adv, _ := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
//	_ = adv.Advertise(&discovery.ServerInfo{Name: "ioc-1", Port: 5075, Version: "1", PVCount: 12})
//	defer adv.Stop()
//
// # Browsing
//
//	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{})
//	_ = browser.Browse(ctx, func(s *discovery.ServerService, removed bool) {
//		// s.AddrList() yields host:port endpoints usable as a client
//		// address list.
//	})
//
// FindFirst is a convenience for clients that only need one server.
package discovery
