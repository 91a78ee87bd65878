package switchio

import "context"

// Dialer opens the control channel to one switch instance.
type Dialer func(ctx context.Context, addr, password string) (Client, error)

// DefaultDialer is the transport used by cmd/controller.
//
// NOTE: The event-socket transport adapter is injected here by the build that
// links it. The controller core never sees wire framing; it only uses the
// Client contract. Without an adapter the process fails fast at startup.
var DefaultDialer Dialer = func(ctx context.Context, addr, password string) (Client, error) {
	return nil, ErrNotConnected
}
