// Package grpcclient is the operator-side client for the relay admin gRPC service.
package grpcclient

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ItsCrafted/blooket-hacks/internal/admin"
	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
	"github.com/ItsCrafted/blooket-hacks/internal/resilience"
	"github.com/ItsCrafted/blooket-hacks/internal/trace"
)

// Config holds connection settings.
type Config struct {
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	CallTimeout      time.Duration
	Retry            resilience.RetryConfig
}

// DefaultConfig returns the settings relayctl uses.
func DefaultConfig() Config {
	return Config{
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		CallTimeout:      DefaultCallTimeout,
		Retry:            resilience.DefaultRetryConfig(),
	}
}

// Client calls the admin service with a bearer token attached to every RPC.
type Client struct {
	conn *grpc.ClientConn
	cfg  Config
}

// New connects to addr. Extra dial options are appended after the defaults.
func New(addr, token string, cfg Config, opts ...grpc.DialOption) (*Client, error) {
	if token == "" {
		return nil, apperrors.New(apperrors.CodeConfigMissing, "admin token is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(bearer(token)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: false,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}, opts...)

	conn, err := grpc.NewClient(addr, dial...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "connect to admin service")
	}
	return &Client{conn: conn, cfg: cfg}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Ban adds an identity to the ban registry and reports whether it was new.
func (c *Client) Ban(ctx context.Context, id string) (bool, error) {
	return c.change(ctx, admin.MethodBan, id)
}

// Unban removes an identity and reports whether it was present.
func (c *Client) Unban(ctx context.Context, id string) (bool, error) {
	return c.change(ctx, admin.MethodUnban, id)
}

// AddWord adds a filtered term.
func (c *Client) AddWord(ctx context.Context, word string) (bool, error) {
	return c.change(ctx, admin.MethodAddWord, word)
}

// RemoveWord removes a filtered term.
func (c *Client) RemoveWord(ctx context.Context, word string) (bool, error) {
	return c.change(ctx, admin.MethodRemoveWord, word)
}

// Bans lists banned identities.
func (c *Client) Bans(ctx context.Context) ([]string, error) {
	return c.list(ctx, admin.MethodListBans)
}

// Words lists filtered terms.
func (c *Client) Words(ctx context.Context) ([]string, error) {
	return c.list(ctx, admin.MethodListWords)
}

// Stats returns the relay's live figures.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.read(ctx, admin.MethodStats, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// SetReputationCheck switches the connect-time reputation check.
func (c *Client) SetReputationCheck(ctx context.Context, on bool) error {
	return c.invoke(ctx, admin.MethodSetReputationCheck, wrapperspb.Bool(on), new(emptypb.Empty))
}

func (c *Client) change(ctx context.Context, method, arg string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, method, wrapperspb.String(arg), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) list(ctx context.Context, method string) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.read(ctx, method, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	items := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		items = append(items, v.GetStringValue())
	}
	return items, nil
}

// read retries transient failures; reads are safe to repeat.
func (c *Client) read(ctx context.Context, method string, in, out any) error {
	return resilience.Retry(ctx, c.cfg.Retry, func() error {
		return c.invoke(ctx, method, in, out)
	})
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	if err := c.conn.Invoke(ctx, admin.FullMethod(method), in, out); err != nil {
		return apperrors.FromGRPCError(err)
	}
	return nil
}

type bearer string

func (b bearer) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(b)}, nil
}

func (bearer) RequireTransportSecurity() bool { return false }
