// Command pvget reads the current value of one or more PVs.
//
// Usage:
//
//	pvget [flags] <pv> [<pv> ...]
//
// Flags:
//
//	-addr string      Space-separated server endpoints (overrides PVA_ADDR_LIST)
//	-config string    Client configuration file (YAML)
//	-timeout duration Request timeout (default from config)
//	-field string     Read a single sub-field instead of the whole structure
//	-full             Print the complete structure, not just the value field
//	-discover         Locate a server via mDNS instead of the address list
//
// Examples:
//
//	pvget temperature:water
//	pvget -field alarm.severity temperature:water
//	pvget -addr "10.0.0.5:5075" -full motor:1:position
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/client"
	"github.com/pvaccess-protocol/pva-go/pkg/config"
	"github.com/pvaccess-protocol/pva-go/pkg/discovery"
	"github.com/pvaccess-protocol/pva-go/pkg/version"
)

var (
	addrList   = flag.String("addr", "", "space-separated server endpoints")
	configFile = flag.String("config", "", "client configuration file (YAML)")
	timeout    = flag.Duration("timeout", 0, "request timeout")
	field      = flag.String("field", "", "read a single sub-field")
	full       = flag.Bool("full", false, "print the complete structure")
	discover   = flag.Bool("discover", false, "locate a server via mDNS")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: pvget [flags] <pv> [<pv> ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvget: %v\n", err)
		os.Exit(1)
	}

	ctx, err := client.NewContext(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvget: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	failed := false
	for _, pv := range flag.Args() {
		if err := printPV(ctx, pv); err != nil {
			fmt.Fprintf(os.Stderr, "pvget: %s: %v\n", pv, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printPV(ctx *client.Context, pv string) error {
	if *field != "" {
		value, err := ctx.GetField(pv, *field)
		if err != nil {
			return err
		}
		fmt.Printf("%s.%s %s\n", pv, *field, value)
		return nil
	}

	value, err := ctx.Get(pv)
	if err != nil {
		return err
	}

	if *full {
		fmt.Printf("%s\n%s\n", pv, value)
		return nil
	}

	// Default output is the value field alone, mirroring a plain read.
	if v, err := value.Lookup("value"); err == nil {
		fmt.Printf("%s %s\n", pv, v)
	} else {
		fmt.Printf("%s %s\n", pv, value)
	}
	return nil
}

func loadConfig() (config.Client, error) {
	cfg, err := config.ClientFromEnv()
	if err != nil {
		return config.Client{}, err
	}

	if *configFile != "" {
		cfg, err = config.LoadClientFile(*configFile)
		if err != nil {
			return config.Client{}, err
		}
	}

	if *addrList != "" {
		addrs, err := config.ParseAddrList(*addrList)
		if err != nil {
			return config.Client{}, err
		}
		cfg.AddrList = addrs
	}

	if *discover {
		addrs, err := discoverServer()
		if err != nil {
			return config.Client{}, err
		}
		cfg.AddrList = addrs
	}

	if *timeout > 0 {
		cfg.RequestTimeout = *timeout
	}

	return cfg, nil
}

func discoverServer() ([]string, error) {
	findCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{})
	svc, err := browser.FindFirst(findCtx)
	if err != nil {
		return nil, fmt.Errorf("mDNS discovery: %w", err)
	}

	if svc.Version != "" {
		remote, err := version.Parse(svc.Version)
		if err == nil {
			local, _ := version.Parse(version.Current)
			if !local.Compatible(remote) {
				return nil, fmt.Errorf("server %s speaks protocol %s, this client speaks %s",
					svc.InstanceName, remote, local)
			}
		}
	}

	return svc.AddrList(), nil
}
