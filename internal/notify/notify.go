package notify

import (
	"context"

	"github.com/hamed0406/hostwatch/internal/domain"
)

// Channel delivers text messages to numeric recipients and can later
// rewrite a delivered message through the handle it returned.
type Channel interface {
	Send(ctx context.Context, recipientID int64, text string) (domain.MessageHandle, error)
	Edit(ctx context.Context, handle domain.MessageHandle, text string) error
}
