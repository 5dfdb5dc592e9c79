package filesystem

import (
	"context"
	"fmt"
	"time"
)

// Exported constants.
const (
	DefaultDialTimeout = 30 * time.Second
)

// Dialer opens a new remote session.
type Dialer func(ctx context.Context) (Conn, error)

// NewDialer returns a Dialer for target. The scheme picks the backend.
func NewDialer(target *RemoteURL, timeout time.Duration) Dialer {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	return func(ctx context.Context) (Conn, error) {
		switch target.Scheme {
		case SchemeFTP:
			conn, err := ConnectFTP(ctx, target, timeout)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to %s: %w", target.Redacted(), err)
			}

			return conn, nil
		case SchemeSFTP:
			conn, err := ConnectSFTP(ctx, target, timeout)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to %s: %w", target.Redacted(), err)
			}

			return conn, nil
		default:
			return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRemoteURL, target.Scheme)
		}
	}
}
