package repo

import "context"

// GroupSetting is the persisted enable flag of a group
type GroupSetting struct {
	GroupID string
	Enabled bool
}

// GroupRepo persists which groups the agent may talk in
type GroupRepo interface {
	// IsEnabled returns the stored flag, or the default when unknown
	IsEnabled(ctx context.Context, groupID string) (bool, error)

	// SetEnabled stores the flag
	SetEnabled(ctx context.Context, groupID string, enabled bool) error

	// List returns every stored setting
	List(ctx context.Context) ([]GroupSetting, error)
}
