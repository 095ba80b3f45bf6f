// Command pvserver hosts PVs over the wire protocol.
//
// Usage:
//
//	pvserver [flags] [name=value ...]
//
// Each positional argument creates an opened mailbox PV. The value is
// typed the same way pvput types it: int32, double, or string.
//
// Flags:
//
//	-port int         Listen port (default 5075, PVA_SERVER_PORT overrides)
//	-addr string      Explicit listen address ("host:port", overrides -port)
//	-config string    Server configuration file (YAML)
//	-mdns             Advertise the server via mDNS
//	-name string      mDNS instance name (default pva-<port>)
//	-interactive      Start an interactive console for managing PVs
//	-log              Log protocol traffic to stderr
//	-log-file string  Record protocol traffic to a capture file
//
// Examples:
//
//	pvserver temperature:water=21.5 device:label=idle
//	pvserver -port 5085 -mdns -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pvaccess-protocol/pva-go/cmd/pvserver/interactive"
	"github.com/pvaccess-protocol/pva-go/pkg/config"
	"github.com/pvaccess-protocol/pva-go/pkg/discovery"
	"github.com/pvaccess-protocol/pva-go/pkg/log"
	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/server"
	"github.com/pvaccess-protocol/pva-go/pkg/version"
)

var (
	port        = flag.Int("port", 0, "listen port")
	listenAddr  = flag.String("addr", "", "explicit listen address")
	configFile  = flag.String("config", "", "server configuration file (YAML)")
	mdns        = flag.Bool("mdns", false, "advertise the server via mDNS")
	mdnsName    = flag.String("name", "", "mDNS instance name")
	runConsole  = flag.Bool("interactive", false, "start an interactive console")
	logProtocol = flag.Bool("log", false, "log protocol traffic to stderr")
	logFile     = flag.String("log-file", "", "record protocol traffic to a capture file")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		stdlog.Fatalf("pvserver: %v", err)
	}

	srv := server.New(cfg)

	var loggers []log.Logger
	if *logProtocol {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, log.NewSlogAdapter(slog.New(handler)))
	}
	if *logFile != "" {
		fl, err := log.NewFileLogger(*logFile)
		if err != nil {
			stdlog.Fatalf("pvserver: %v", err)
		}
		defer fl.Close()
		loggers = append(loggers, fl)
	}
	switch len(loggers) {
	case 0:
	case 1:
		srv.SetLogger(loggers[0])
	default:
		srv.SetLogger(log.NewMultiLogger(loggers...))
	}

	if err := seedPVs(srv, flag.Args()); err != nil {
		stdlog.Fatalf("pvserver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		stdlog.Fatalf("pvserver: %v", err)
	}
	stdlog.Printf("serving %d PVs on port %d", len(srv.PVNames()), srv.TCPPort())

	advertiser := startAdvertiser(srv)
	if advertiser != nil {
		defer advertiser.Stop()
	}

	if *runConsole {
		console, err := interactive.New(srv)
		if err != nil {
			stdlog.Fatalf("pvserver: %v", err)
		}
		console.Run(ctx, cancel)
	} else {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			stdlog.Printf("received signal: %v", sig)
		case <-ctx.Done():
		}
	}

	if err := srv.Stop(); err != nil {
		stdlog.Printf("error stopping server: %v", err)
	}
}

// seedPVs creates an opened mailbox for each name=value argument.
func seedPVs(srv *server.Server, args []string) error {
	for _, arg := range args {
		name, raw, found := strings.Cut(arg, "=")
		if !found || name == "" {
			return fmt.Errorf("malformed PV definition %q (want name=value)", arg)
		}

		pv := srv.CreateMailbox(name)
		var err error
		if i, perr := strconv.ParseInt(raw, 10, 32); perr == nil {
			err = pv.OpenInt32(int32(i), pvdata.Metadata{})
		} else if f, perr := strconv.ParseFloat(raw, 64); perr == nil {
			err = pv.OpenDouble(f, pvdata.Metadata{})
		} else {
			err = pv.OpenString(raw, pvdata.Metadata{})
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func startAdvertiser(srv *server.Server) discovery.Advertiser {
	if !*mdns {
		return nil
	}

	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		stdlog.Printf("mDNS advertiser unavailable: %v", err)
		return nil
	}

	err = adv.Advertise(&discovery.ServerInfo{
		Name:    *mdnsName,
		Port:    uint16(srv.TCPPort()),
		Version: version.Current,
		PVCount: len(srv.PVNames()),
	})
	if err != nil {
		stdlog.Printf("mDNS advertise failed: %v", err)
		return nil
	}
	stdlog.Printf("advertising %s on port %d", discovery.ServiceType, srv.TCPPort())
	return adv
}

func loadConfig() (config.Server, error) {
	cfg, err := config.ServerFromEnv()
	if err != nil {
		return config.Server{}, err
	}

	if *configFile != "" {
		cfg, err = config.LoadServerFile(*configFile)
		if err != nil {
			return config.Server{}, err
		}
	}

	if *port != 0 {
		if *port < 0 || *port > 65535 {
			return config.Server{}, fmt.Errorf("port %d out of range", *port)
		}
		cfg.Port = *port
		cfg.Address = ""
	}
	if *listenAddr != "" {
		cfg.Address = *listenAddr
	}

	return cfg, nil
}
