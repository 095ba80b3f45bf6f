// Command pvcall executes an RPC operation against a PV.
//
// Usage:
//
//	pvcall [flags] <pv> [name=value ...]
//
// Arguments are typed by their value: integers become int32, floats
// become double, true/false become bool, everything else is a string.
//
// Flags:
//
//	-addr string      Space-separated server endpoints (overrides PVA_ADDR_LIST)
//	-config string    Client configuration file (YAML)
//	-timeout duration Request timeout (default from config)
//
// Examples:
//
//	pvcall calc:sum a=1.5 b=2.5
//	pvcall motor:1:home direction=reverse fast=true
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

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
		fmt.Fprintln(os.Stderr, "usage: pvcall [flags] <pv> [name=value ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	pv := flag.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvcall: %v\n", err)
		os.Exit(1)
	}

	ctx, err := client.NewContext(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvcall: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	call := ctx.RPC(pv)
	for _, arg := range flag.Args()[1:] {
		name, raw, found := strings.Cut(arg, "=")
		if !found || name == "" {
			fmt.Fprintf(os.Stderr, "pvcall: malformed argument %q (want name=value)\n", arg)
			os.Exit(2)
		}
		addArg(call, name, raw)
	}

	result, err := call.Execute(*timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvcall: %s: %v\n", pv, err)
		os.Exit(1)
	}
	if result != nil {
		fmt.Println(result)
	}
}

func addArg(call *client.RpcCall, name, raw string) {
	if i, err := strconv.ParseInt(raw, 10, 32); err == nil {
		call.ArgInt32(name, int32(i))
		return
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		call.ArgDouble(name, f)
		return
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		call.ArgBool(name, b)
		return
	}
	call.ArgString(name, raw)
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
