package ports

import (
	"context"

	"github.com/hust/bookingclient/core"
)

// EventPublisher notifies other parts of the client about session transitions
type EventPublisher interface {
	PublishStateChange(ctx context.Context, change core.StateChange) error
}
