// Package netaddr discovers the address other participants use to reach
// this machine's server.
package netaddr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// Exported constants.
const (
	DefaultEndpoint      = "http://checkip.amazonaws.com"
	DefaultTimeout       = 10 * time.Second
	DefaultRetryInterval = 2 * time.Second
	requestRetries       = 2
	userAgent            = "server-sync"
)

var (
	ErrBadResponse = errors.New("address service returned no usable address")
)

// Source yields the address to publish in the host record.
type Source interface {
	Address(ctx context.Context) (string, error)
}

// Static is a fixed, operator-configured address.
type Static string

// Address returns the configured value.
func (s Static) Address(context.Context) (string, error) {
	return string(s), nil
}

// Resolver asks a plain-text "what is my IP" service.
type Resolver struct {
	client        *req.Client
	endpoint      string
	retryInterval time.Duration
	logger        *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEndpoint overrides the address service URL.
func WithEndpoint(endpoint string) Option {
	return func(r *Resolver) { r.endpoint = endpoint }
}

// WithRetryInterval sets the pause between failed rounds and between the
// request-level retries inside a round.
func WithRetryInterval(d time.Duration) Option {
	return func(r *Resolver) { r.retryInterval = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a resolver for DefaultEndpoint.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		endpoint:      DefaultEndpoint,
		retryInterval: DefaultRetryInterval,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.client = req.C().
		SetTimeout(DefaultTimeout).
		SetUserAgent(userAgent).
		SetCommonRetryCount(requestRetries).
		SetCommonRetryFixedInterval(r.retryInterval).
		SetCommonRetryCondition(func(resp *req.Response, err error) bool {
			return err != nil || resp.IsErrorState()
		})

	return r
}

// Address keeps asking the service until it answers with an IP address or
// ctx ends.
func (r *Resolver) Address(ctx context.Context) (string, error) {
	for {
		addr, err := r.lookup(ctx)
		if err == nil {
			r.logger.Info("discovered external address", "address", addr)

			return addr, nil
		}

		r.logger.Warn("could not retrieve external address, trying again", "endpoint", r.endpoint, "err", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("external address lookup: %w", ctx.Err())
		case <-time.After(r.retryInterval):
		}
	}
}

func (r *Resolver) lookup(ctx context.Context) (string, error) {
	resp, err := r.client.R().SetContext(ctx).Get(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", r.endpoint, err)
	}

	if resp.IsErrorState() {
		return "", fmt.Errorf("%w: status %d", ErrBadResponse, resp.GetStatusCode())
	}

	addr := strings.TrimSpace(resp.String())
	if net.ParseIP(addr) == nil {
		return "", fmt.Errorf("%w: %q", ErrBadResponse, addr)
	}

	return addr, nil
}
