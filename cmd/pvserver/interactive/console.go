// Package interactive provides the interactive console for pvserver.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pvaccess-protocol/pva-go/pkg/pvdata"
	"github.com/pvaccess-protocol/pva-go/pkg/server"
)

// Console handles interactive mode for pvserver.
type Console struct {
	srv *server.Server
	rl  *readline.Instance
}

// New creates a new interactive console bound to a running server.
func New(srv *server.Server) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pvserver> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{srv: srv, rl: rl}, nil
}

// Run starts the interactive command loop. It returns when the user
// quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "list", "ls":
			c.cmdList()

		case "get", "g":
			c.cmdGet(args)

		case "info", "i":
			c.cmdInfo(args)

		case "open", "o":
			c.cmdOpen(args)

		case "post", "p":
			c.cmdPost(args)

		case "alarm":
			c.cmdAlarm(args)

		case "close":
			c.cmdClose(args)

		case "remove", "rm":
			c.cmdRemove(args)

		case "status":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
PV Server Commands:
  Hosting:
    list                          - List registered PVs
    open <pv> <type> <value...>   - Create and open a mailbox PV
                                    (types: double, int, string, enum)
    post <pv> <value>             - Post a new value
    alarm <pv> <value> <sev> [msg]- Post a value with an alarm (sev 0-3)
    close <pv>                    - Close a PV (subscribers see Finished)
    remove <pv>                   - Drop a PV registration

  Inspection:
    get <pv> [field]              - Read the current value or one field
    info <pv>                     - Print the full structure
    status                        - Show server status

  General:
    help                          - Show this help
    quit                          - Stop the server and exit

  Enum PVs:
    open mode enum 0 off standby run`)
}

func (c *Console) cmdList() {
	names := c.srv.PVNames()
	if len(names) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "No PVs registered")
		return
	}
	for _, name := range names {
		pv, ok := c.srv.LookupPV(name)
		if !ok {
			continue
		}
		state := "closed"
		if pv.IsOpen() {
			state = "open"
		}
		access := "mailbox"
		if !pv.IsMailbox() {
			access = "readonly"
		}
		fmt.Fprintf(c.rl.Stdout(), "  %-30s %-8s %s\n", name, state, access)
	}
}

func (c *Console) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: get <pv> [field]")
		return
	}

	pv, ok := c.srv.LookupPV(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown PV: %s\n", args[0])
		return
	}

	current, err := pv.Fetch()
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}

	path := "value"
	if len(args) > 1 {
		path = args[1]
	}
	field, err := current.Lookup(path)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s.%s = %s\n", args[0], path, field)
}

func (c *Console) cmdInfo(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: info <pv>")
		return
	}

	pv, ok := c.srv.LookupPV(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown PV: %s\n", args[0])
		return
	}

	current, err := pv.Fetch()
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s\n%s\n", args[0], current)
}

func (c *Console) cmdOpen(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: open <pv> <double|int|string|enum> <value...>")
		return
	}
	name, kind := args[0], strings.ToLower(args[1])

	pv := c.srv.CreateMailbox(name)

	var err error
	switch kind {
	case "double", "d":
		var f float64
		if f, err = strconv.ParseFloat(args[2], 64); err == nil {
			err = pv.OpenDouble(f, pvdata.Metadata{})
		}
	case "int", "int32":
		var i int64
		if i, err = strconv.ParseInt(args[2], 10, 32); err == nil {
			err = pv.OpenInt32(int32(i), pvdata.Metadata{})
		}
	case "string", "str":
		err = pv.OpenString(strings.Join(args[2:], " "), pvdata.Metadata{})
	case "enum":
		if len(args) < 4 {
			fmt.Fprintln(c.rl.Stdout(), "Usage: open <pv> enum <index> <choice...>")
			c.srv.RemovePV(name)
			return
		}
		var i int64
		if i, err = strconv.ParseInt(args[2], 10, 16); err == nil {
			err = pv.OpenEnum(int16(i), args[3:], pvdata.Metadata{})
		}
	default:
		fmt.Fprintf(c.rl.Stdout(), "Unknown type: %s\n", kind)
		c.srv.RemovePV(name)
		return
	}

	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		c.srv.RemovePV(name)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Opened %s\n", name)
}

func (c *Console) cmdPost(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: post <pv> <value>")
		return
	}

	pv, ok := c.srv.LookupPV(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown PV: %s\n", args[0])
		return
	}

	if err := postParsed(pv, strings.Join(args[1:], " ")); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) cmdAlarm(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: alarm <pv> <value> <severity> [message]")
		return
	}

	pv, ok := c.srv.LookupPV(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown PV: %s\n", args[0])
		return
	}

	sev, err := strconv.ParseInt(args[2], 10, 32)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad severity: %s\n", args[2])
		return
	}
	alarm := pvdata.Alarm{
		Severity: int32(sev),
		Message:  strings.Join(args[3:], " "),
	}

	raw := args[1]
	if i, perr := strconv.ParseInt(raw, 10, 32); perr == nil {
		err = pv.PostInt32WithAlarm(int32(i), alarm)
	} else if f, perr := strconv.ParseFloat(raw, 64); perr == nil {
		err = pv.PostDoubleWithAlarm(f, alarm)
	} else {
		err = pv.PostStringWithAlarm(raw, alarm)
	}
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) cmdClose(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: close <pv>")
		return
	}

	pv, ok := c.srv.LookupPV(args[0])
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Unknown PV: %s\n", args[0])
		return
	}
	pv.Close()
	fmt.Fprintf(c.rl.Stdout(), "Closed %s\n", args[0])
}

func (c *Console) cmdRemove(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: remove <pv>")
		return
	}
	c.srv.RemovePV(args[0])
	fmt.Fprintf(c.rl.Stdout(), "Removed %s\n", args[0])
}

func (c *Console) cmdStatus() {
	fmt.Fprintf(c.rl.Stdout(), "Port: %d\n", c.srv.TCPPort())
	fmt.Fprintf(c.rl.Stdout(), "PVs:  %d\n", len(c.srv.PVNames()))
}

// postParsed types the raw token the way pvput does: int, then float,
// then string. An int token posted to an enum PV selects the index.
func postParsed(pv *server.SharedPV, raw string) error {
	if i, err := strconv.ParseInt(raw, 10, 32); err == nil {
		err := pv.PostInt32(int32(i))
		if errors.Is(err, pvdata.ErrTypeMismatch) && i >= 0 && i <= 0x7FFF {
			return pv.PostEnum(int16(i))
		}
		return err
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return pv.PostDouble(f)
	}
	return pv.PostString(raw)
}
