// Command relayctl mints admin tokens and drives the relay admin gRPC service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ItsCrafted/blooket-hacks/internal/admin"
	"github.com/ItsCrafted/blooket-hacks/internal/grpcclient"
)

const usage = `usage: relayctl [flags] COMMAND [ARG]

commands:
  token                    mint an admin token (needs ADMIN_SECRET)
  ban|unban ID             change the ban registry
  addword|rmword WORD      change the filtered word list
  bans|words|stats         list registry contents or live figures
  vpncheck on|off          switch the connect-time reputation check
`

// Env fallbacks for flags.
const (
	addrEnv   = "RELAY_ADMIN_ADDR"
	tokenEnv  = "RELAY_ADMIN_TOKEN"
	secretEnv = "ADMIN_SECRET"
)

type options struct {
	addr    string
	token   string
	subject string
	ttl     time.Duration
	timeout time.Duration
	args    []string
}

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Getenv); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "relayctl: %v\n", err)
		os.Exit(1)
	}
}

func parse(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("relayctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var o options
	fs.StringVar(&o.addr, "addr", envOr(getenv, addrEnv, "127.0.0.1:50061"), "admin gRPC address")
	fs.StringVar(&o.token, "token", getenv(tokenEnv), "admin bearer token")
	fs.StringVar(&o.subject, "sub", "", "token subject (token command)")
	fs.DurationVar(&o.ttl, "ttl", time.Hour, "token lifetime (token command)")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "per-command timeout")
	if err := fs.Parse(args); err != nil {
		return o, fmt.Errorf("%w: %v", errUsage, err)
	}
	o.args = fs.Args()
	if len(o.args) == 0 {
		return o, fmt.Errorf("%w: missing command", errUsage)
	}
	return o, nil
}

func run(ctx context.Context, args []string, out io.Writer, getenv func(string) string) error {
	o, err := parse(args, getenv)
	if err != nil {
		return err
	}
	cmd, rest := o.args[0], o.args[1:]

	if cmd == "token" {
		if o.subject == "" {
			return fmt.Errorf("%w: token needs -sub", errUsage)
		}
		tok, err := admin.Mint([]byte(getenv(secretEnv)), o.subject, o.ttl, time.Now())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, tok)
		return err
	}

	action, err := lookup(cmd, rest)
	if err != nil {
		return err
	}

	client, err := grpcclient.New(o.addr, o.token, grpcclient.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	result, err := action(ctx, client)
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

type action func(context.Context, *grpcclient.Client) (any, error)

func lookup(cmd string, rest []string) (action, error) {
	arg := func() (string, error) {
		if len(rest) != 1 {
			return "", fmt.Errorf("%w: %s takes exactly one argument", errUsage, cmd)
		}
		return rest[0], nil
	}
	change := func(fn func(*grpcclient.Client, context.Context, string) (bool, error)) (action, error) {
		v, err := arg()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, c *grpcclient.Client) (any, error) {
			changed, err := fn(c, ctx, v)
			return map[string]any{"changed": changed}, err
		}, nil
	}

	switch cmd {
	case "ban":
		return change((*grpcclient.Client).Ban)
	case "unban":
		return change((*grpcclient.Client).Unban)
	case "addword":
		return change((*grpcclient.Client).AddWord)
	case "rmword":
		return change((*grpcclient.Client).RemoveWord)
	case "bans":
		return func(ctx context.Context, c *grpcclient.Client) (any, error) { return c.Bans(ctx) }, nil
	case "words":
		return func(ctx context.Context, c *grpcclient.Client) (any, error) { return c.Words(ctx) }, nil
	case "stats":
		return func(ctx context.Context, c *grpcclient.Client) (any, error) { return c.Stats(ctx) }, nil
	case "vpncheck":
		v, err := arg()
		if err != nil {
			return nil, err
		}
		var on bool
		switch v {
		case "on":
			on = true
		case "off":
		default:
			return nil, fmt.Errorf("%w: vpncheck takes on or off", errUsage)
		}
		return func(ctx context.Context, c *grpcclient.Client) (any, error) {
			return map[string]any{"enabled": on}, c.SetReputationCheck(ctx, on)
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
