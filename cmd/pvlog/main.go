// Command pvlog views and summarizes protocol capture files written by
// pvserver's -log-file flag.
//
// Usage:
//
//	pvlog <command> [flags] <file>
//
// Commands:
//
//	view     Print events in human-readable form
//	stats    Summarize the capture file
//
// Examples:
//
//	pvlog view capture.plog
//	pvlog view -pv temperature:water -dir in capture.plog
//	pvlog stats capture.plog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pvaccess-protocol/pva-go/pkg/log"
)

const usage = `pvlog - protocol capture viewer

Usage:
  pvlog <command> [flags] <file>

Commands:
  view     Print events in human-readable form
  stats    Summarize the capture file

Use "pvlog <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "view":
		runView(os.Args[2:])
	case "stats":
		runStats(os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "pvlog: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	pv := fs.String("pv", "", "only events for this PV")
	connID := fs.String("conn", "", "only events for this connection ID")
	dir := fs.String("dir", "", "only this direction: in or out")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pvlog view [flags] <file>")
		fs.PrintDefaults()
		os.Exit(2)
	}

	filter := log.Filter{ConnectionID: *connID, PV: *pv}
	switch *dir {
	case "":
	case "in":
		d := log.DirectionIn
		filter.Direction = &d
	case "out":
		d := log.DirectionOut
		filter.Direction = &d
	default:
		fmt.Fprintf(os.Stderr, "pvlog: bad direction %q (want in or out)\n", *dir)
		os.Exit(2)
	}

	reader, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvlog: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(os.Stderr, "pvlog: %v\n", err)
			os.Exit(1)
		}
		printEvent(event)
	}
}

func printEvent(event log.Event) {
	stamp := event.Timestamp.Format("15:04:05.000000")
	conn := event.ConnectionID
	if len(conn) > 8 {
		conn = conn[:8]
	}

	fmt.Printf("%s %-8s %-3s %-9s %-7s",
		stamp, conn, event.Direction, event.Layer, event.Category)

	switch {
	case event.Message != nil:
		m := event.Message
		fmt.Printf(" %s id=%d", m.Type, m.MessageID)
		if m.Operation != nil {
			fmt.Printf(" op=%s", m.Operation)
		}
		if m.PV != "" {
			fmt.Printf(" pv=%s", m.PV)
		}
		if m.Status != nil {
			fmt.Printf(" status=%s", m.Status)
		}
		if m.SubscriptionID != nil {
			fmt.Printf(" sub=%d", *m.SubscriptionID)
		}
		if m.EventKind != nil {
			fmt.Printf(" event=%s", m.EventKind)
		}
		if m.ProcessingTime != nil {
			fmt.Printf(" took=%s", m.ProcessingTime)
		}
	case event.Frame != nil:
		fmt.Printf(" %d bytes", event.Frame.Size)
	case event.ControlMsg != nil:
		fmt.Printf(" %s", event.ControlMsg.Type)
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Printf(" %s %s -> %s", sc.Entity, sc.OldState, sc.NewState)
	case event.Error != nil:
		fmt.Printf(" %s", event.Error.Message)
	}
	fmt.Println()
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pvlog stats <file>")
		os.Exit(2)
	}

	reader, err := log.NewReader(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pvlog: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	var total int
	byCategory := map[string]int{}
	byPV := map[string]int{}
	conns := map[string]struct{}{}

	for {
		event, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(os.Stderr, "pvlog: %v\n", err)
			os.Exit(1)
		}
		total++
		byCategory[event.Category.String()]++
		if event.PV != "" {
			byPV[event.PV]++
		}
		if event.ConnectionID != "" {
			conns[event.ConnectionID] = struct{}{}
		}
	}

	fmt.Printf("Events:      %d\n", total)
	fmt.Printf("Connections: %d\n", len(conns))

	fmt.Println("By category:")
	for _, k := range sortedKeys(byCategory) {
		fmt.Printf("  %-9s %d\n", k, byCategory[k])
	}

	if len(byPV) > 0 {
		fmt.Println("By PV:")
		for _, k := range sortedKeys(byPV) {
			fmt.Printf("  %-30s %d\n", k, byPV[k])
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
