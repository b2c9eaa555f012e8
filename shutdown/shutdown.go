package shutdown

import (
	"context"
	"os/signal"
)

// Context is cancelled on the first interrupt or termination signal.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
