package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/spinelctl/internal/gateway"
	"github.com/danmuck/spinelctl/internal/ncp"
	"github.com/danmuck/spinelctl/internal/observability"
	"github.com/danmuck/spinelctl/internal/protocol"
	"github.com/danmuck/spinelctl/internal/protocol/schema"
	"github.com/danmuck/spinelctl/internal/transport/serial"
	"github.com/rs/zerolog/log"
)

const usage = `usage: spinelctl [flags] <command> [args]

commands:
  info                 identify the device
  get NAME             read a property
  set NAME VALUE       write a property
  insert NAME VALUE    add an item to a list property
  remove NAME VALUE    remove an item from a list property
  reset                soft reset the device
  watch [NAME...]      print unsolicited updates
  serve                run the HTTP gateway
`

// openSession is swapped in tests.
var openSession = func(cfg appConfig) (*ncp.Session, error) {
	reg := schema.Default()
	if cfg.Descriptors != "" {
		if err := schema.LoadFile(cfg.Descriptors, reg); err != nil {
			return nil, err
		}
	}
	port, err := serial.Open(cfg.Serial)
	if err != nil {
		return nil, err
	}
	s, err := ncp.Open(port, cfg.Session, reg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return s, nil
}

func main() {
	observability.InitLogger("spinelctl")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "spinelctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("spinelctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to a TOML config file")
	port := fs.String("port", "", "serial device path")
	baud := fs.Int("baud", 0, "serial baud rate")
	descriptors := fs.String("descriptors", "", "extra property descriptor table")
	addr := fs.String("addr", "", "gateway listen address")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	if fs.NArg() == 0 {
		return errors.New(usage)
	}

	cfg := defaultAppConfig()
	if *configPath != "" {
		loaded, err := loadAppConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *port != "" {
		cfg.Serial.Path = *port
	}
	if *baud > 0 {
		cfg.Serial.Baud = *baud
	}
	if *descriptors != "" {
		cfg.Descriptors = *descriptors
	}
	if *addr != "" {
		cfg.Gateway.Addr = *addr
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if err := checkArgs(cmd, rest); err != nil {
		return err
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	log.Debug().Msgf("spinelctl.run command=%s port=%s", cmd, cfg.Serial.Path)

	switch cmd {
	case "info":
		info, err := s.Identify(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, info)
	case "get":
		d, err := s.Lookup(rest[0])
		if err != nil {
			return err
		}
		v, err := s.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"property": d.Name, "value": gateway.JSONValue(v)})
	case "set", "insert", "remove":
		d, err := s.Lookup(rest[0])
		if err != nil {
			return err
		}
		v := parseValue(rest[1])
		switch cmd {
		case "set":
			err = s.Set(ctx, d.ID, v)
		case "insert":
			err = s.Insert(ctx, d.ID, v)
		default:
			err = s.Remove(ctx, d.ID, v)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s ok\n", cmd, d.Name)
		return nil
	case "reset":
		reason, err := s.Reset(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "reset %s epoch=%d\n", reason, s.Epoch())
		return nil
	case "watch":
		return watch(ctx, s, rest, out)
	default:
		srv := gateway.New(cfg.Gateway, s)
		return srv.Serve(ctx)
	}
}

func checkArgs(cmd string, rest []string) error {
	want := map[string]int{"info": 0, "reset": 0, "serve": 0, "get": 1, "set": 2, "insert": 2, "remove": 2}
	if cmd == "watch" {
		return nil
	}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if len(rest) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", cmd, n, len(rest))
	}
	return nil
}

func watch(ctx context.Context, s *ncp.Session, refs []string, out io.Writer) error {
	props := make([]protocol.PropertyID, 0, len(refs))
	for _, ref := range refs {
		d, err := s.Lookup(ref)
		if err != nil {
			return err
		}
		props = append(props, d.ID)
	}
	sub := s.Subscribe(props...)
	defer sub.Close()
	log.Info().Msgf("spinelctl.watch properties=%v", props)

	for {
		n, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		line := map[string]any{
			"epoch":   n.Epoch,
			"command": n.Command.ID.String(),
			"value":   gateway.JSONValue(n.Value),
		}
		if n.Name != "" {
			line["property"] = n.Name
		}
		if n.Err != nil {
			line["error"] = n.Err.Error()
		}
		if err := printJSON(out, line); err != nil {
			return err
		}
	}
}

// parseValue reads a command line value as JSON, falling back to the
// literal string (hex for data properties).
func parseValue(raw string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	return enc.Encode(v)
}
