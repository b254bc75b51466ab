package repo

import (
	"context"
)

// MessageRepo is the outbound transport to the chat platform
type MessageRepo interface {
	// SendGroupText sends text to a group. A non-empty quoteMsgID sends it
	// as a reply to that message.
	SendGroupText(ctx context.Context, groupID, text, quoteMsgID string) error

	// SendPrivateText sends text to a user in a private chat
	SendPrivateText(ctx context.Context, userID, text string) error
}
