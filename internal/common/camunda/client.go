package camunda

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "kra-assist/internal/common/errors"
)

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	MaxAttempts            uint
	InitialBackoff         time.Duration
}

func DefaultClientConfig(address string) *ClientConfig {
	return &ClientConfig{
		GatewayAddress:         address,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
		MaxAttempts:            3,
		InitialBackoff:         time.Second,
	}
}

// Client owns the gRPC connection to the Zeebe gateway.
type Client struct {
	zeebe  zbc.Client
	config *ClientConfig
}

// NewClient connects and probes the topology, retrying while the gateway is
// unavailable.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config.GatewayAddress == "" {
		return nil, fmt.Errorf("zeebe gateway address is required")
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 10 * time.Second
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}

	zeebe, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("create zeebe client: %w", err)
	}

	c := &Client{zeebe: zeebe, config: config}
	err = retry.Do(
		func() error { return c.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(config.MaxAttempts),
		retry.Delay(config.InitialBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		zeebe.Close()
		return nil, apperrors.NewUpstreamError("zeebe", fmt.Errorf("connect to %s: %w", config.GatewayAddress, err))
	}
	return c, nil
}

func (c *Client) Zeebe() zbc.Client {
	return c.zeebe
}

// Ping requests the broker topology. Used by /ready.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()
	if _, err := c.zeebe.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe topology: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.zeebe.Close()
}

// IsTransient reports gRPC failures worth retrying.
func IsTransient(err error) bool {
	switch status.Code(unwrapStatus(err)) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// unwrapStatus finds the first error in the chain that carries a gRPC status.
func unwrapStatus(err error) error {
	for e := err; e != nil; {
		if _, ok := status.FromError(e); ok {
			return e
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return err
}
