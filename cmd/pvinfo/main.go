// Command pvinfo prints the full structure of one or more PVs,
// including type metadata like display and control ranges.
//
// Usage:
//
//	pvinfo [flags] <pv> [<pv> ...]
//
// Flags:
//
//	-addr string      Space-separated server endpoints (overrides PVA_ADDR_LIST)
//	-config string    Client configuration file (YAML)
//	-timeout duration Request timeout (default from config)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pvaccess-protocol/pva-go/pkg/client"
	"github.com/pvaccess-protocol/pva-go/pkg/config"
)

var (
	addrList   = flag.String("addr", "", "space-separated server endpoints")
	configFile = flag.String("config", "", "client configuration file (YAML)")
	timeout    = flag.Duration("timeout", 0, "request timeout")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: pvinfo [flags] <pv> [<pv> ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvinfo: %v\n", err)
		os.Exit(1)
	}

	ctx, err := client.NewContext(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvinfo: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	failed := false
	for _, pv := range flag.Args() {
		value, err := ctx.Info(pv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pvinfo: %s: %v\n", pv, err)
			failed = true
			continue
		}
		fmt.Printf("%s\n%s\n", pv, value)
	}
	if failed {
		os.Exit(1)
	}
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

	if *timeout > 0 {
		cfg.RequestTimeout = *timeout
	}

	return cfg, nil
}
