// Command pvmonitor subscribes to one or more PVs and prints every
// update until interrupted.
//
// Usage:
//
//	pvmonitor [flags] <pv> [<pv> ...]
//
// Flags:
//
//	-addr string    Space-separated server endpoints (overrides PVA_ADDR_LIST)
//	-config string  Client configuration file (YAML)
//	-quiet          Suppress connection and disconnection events
//	-full           Print the complete structure per update
//
// Examples:
//
//	pvmonitor temperature:water pressure:pump
//	pvmonitor -quiet -full motor:1:position
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/client"
	"github.com/pvaccess-protocol/pva-go/pkg/config"
	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
)

var (
	addrList   = flag.String("addr", "", "space-separated server endpoints")
	configFile = flag.String("config", "", "client configuration file (YAML)")
	quiet      = flag.Bool("quiet", false, "suppress connection events")
	full       = flag.Bool("full", false, "print the complete structure per update")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: pvmonitor [flags] <pv> [<pv> ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvmonitor: %v\n", err)
		os.Exit(1)
	}

	ctx, err := client.NewContext(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvmonitor: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var monitors []*client.Monitor
	for _, pv := range flag.Args() {
		builder := ctx.Monitor(pv)
		if *quiet {
			builder = builder.MaskConnected(true).MaskDisconnected(true)
		}
		m, err := builder.Exec()
		if err != nil {
			fmt.Fprintf(os.Stderr, "pvmonitor: %s: %v\n", pv, err)
			os.Exit(1)
		}
		monitors = append(monitors, m)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			for _, m := range monitors {
				m.Stop()
			}
			return
		case <-ticker.C:
			for _, m := range monitors {
				drain(m)
			}
		}
	}
}

// drain pops the monitor's queue until it is empty, printing data
// updates and, unless -quiet is set, connection events.
func drain(m *client.Monitor) {
	for {
		value, err := m.Pop()
		if err != nil {
			var evt *client.EventError
			if errors.As(err, &evt) {
				if !*quiet {
					fmt.Printf("%s <%s> %s\n", m.Name(), evt.Kind, evt.Reason)
				}
				continue
			}
			fmt.Fprintf(os.Stderr, "pvmonitor: %s: %v\n", m.Name(), err)
			return
		}
		if value == nil {
			return
		}
		printUpdate(m.Name(), *value)
	}
}

func printUpdate(pv string, value pvdata.Value) {
	stamp := time.Now().Format("15:04:05.000")
	if *full {
		fmt.Printf("%s %s\n%s\n", stamp, pv, value)
		return
	}
	if v, err := value.Lookup("value"); err == nil {
		fmt.Printf("%s %s %s\n", stamp, pv, v)
	} else {
		fmt.Printf("%s %s %s\n", stamp, pv, value)
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

	return cfg, nil
}
