package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
	"github.com/ovo-bot/ovo-agent/internal/service"
)

// Admin is the operator-facing view the tools read and change
type Admin interface {
	ListGroups(ctx context.Context) ([]service.GroupView, error)
	SetGroupEnabled(ctx context.Context, groupID string, enabled bool) error
	GetUser(ctx context.Context, userID string) (*service.UserView, error)
}

// Server exposes admin tools over MCP
type Server struct {
	server *mcp.Server
	admin  Admin
}

// NewServer creates the MCP server and registers its tools
func NewServer(admin Admin, version string) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{Name: "ovo-admin", Version: version}, nil),
		admin:  admin,
	}
	s.registerTools()
	return s
}

// Handler serves the tools over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_groups",
		Description: "List known groups with their enable flag, recent activity, topic and whether a reply or proactive message is in flight.",
	}, s.handleListGroups)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_group_enabled",
		Description: "Enable or disable replies and proactive messages in a group.",
	}, s.handleSetGroupEnabled)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_user_state",
		Description: "Get a user's live conversational state and remembered facts.",
	}, s.handleGetUserState)
}

// ListGroupsInput is empty - no input needed
type ListGroupsInput struct{}

// GroupInfo is one group in list_groups output
type GroupInfo struct {
	GroupID          string   `json:"group_id"`
	Enabled          bool     `json:"enabled"`
	RecentCount      int      `json:"recent_count"`
	Participants     int      `json:"participants"`
	Topic            string   `json:"topic,omitempty"`
	TopKeywords      []string `json:"top_keywords,omitempty"`
	LastMessageAt    string   `json:"last_message_at,omitempty"`
	Busy             bool     `json:"busy"`
	ProactivePending bool     `json:"proactive_pending"`
}

// ListGroupsOutput contains the list of groups
type ListGroupsOutput struct {
	Groups []GroupInfo `json:"groups"`
	Error  string      `json:"error,omitempty"`
}

func (s *Server) handleListGroups(ctx context.Context, req *mcp.CallToolRequest, input ListGroupsInput) (*mcp.CallToolResult, ListGroupsOutput, error) {
	groups, err := s.admin.ListGroups(ctx)
	if err != nil {
		return nil, ListGroupsOutput{Groups: []GroupInfo{}, Error: err.Error()}, nil
	}

	out := ListGroupsOutput{Groups: make([]GroupInfo, 0, len(groups))}
	for _, g := range groups {
		out.Groups = append(out.Groups, GroupInfo{
			GroupID:          g.GroupID,
			Enabled:          g.Enabled,
			RecentCount:      g.RecentCount,
			Participants:     g.Participants,
			Topic:            g.Topic,
			TopKeywords:      g.TopKeywords,
			LastMessageAt:    formatTime(g.LastMessageAt),
			Busy:             g.Busy,
			ProactivePending: g.ProactivePending,
		})
	}
	return nil, out, nil
}

// SetGroupEnabledInput is the input for set_group_enabled tool
type SetGroupEnabledInput struct {
	GroupID string `json:"group_id" jsonschema:"The group chat id, e.g. oc_xxx"`
	Enabled bool   `json:"enabled" jsonschema:"true to let the agent talk in the group"`
}

// SetGroupEnabledOutput is the output for set_group_enabled tool
type SetGroupEnabledOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleSetGroupEnabled(ctx context.Context, req *mcp.CallToolRequest, input SetGroupEnabledInput) (*mcp.CallToolResult, SetGroupEnabledOutput, error) {
	if input.GroupID == "" {
		return nil, SetGroupEnabledOutput{Success: false, Error: "group_id is required"}, nil
	}
	if err := s.admin.SetGroupEnabled(ctx, input.GroupID, input.Enabled); err != nil {
		return nil, SetGroupEnabledOutput{Success: false, Error: err.Error()}, nil
	}
	return nil, SetGroupEnabledOutput{Success: true}, nil
}

// GetUserStateInput is the input for get_user_state tool
type GetUserStateInput struct {
	UserID string `json:"user_id" jsonschema:"The user open_id, e.g. ou_xxx"`
}

// GetUserStateOutput is the output for get_user_state tool
type GetUserStateOutput struct {
	Found           bool     `json:"found"`
	UserID          string   `json:"user_id"`
	DisplayName     string   `json:"display_name,omitempty"`
	TotalMessages   int      `json:"total_messages"`
	RepliedMessages int      `json:"replied_messages"`
	Emotion         string   `json:"emotion,omitempty"`
	LastSeen        string   `json:"last_seen,omitempty"`
	TopKeywords     []string `json:"top_keywords,omitempty"`
	Facts           []string `json:"facts,omitempty"`
	Error           string   `json:"error,omitempty"`
}

func (s *Server) handleGetUserState(ctx context.Context, req *mcp.CallToolRequest, input GetUserStateInput) (*mcp.CallToolResult, GetUserStateOutput, error) {
	user, err := s.admin.GetUser(ctx, input.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, GetUserStateOutput{UserID: input.UserID}, nil
	}
	if err != nil {
		return nil, GetUserStateOutput{UserID: input.UserID, Error: err.Error()}, nil
	}

	return nil, GetUserStateOutput{
		Found:           true,
		UserID:          user.UserID,
		DisplayName:     user.DisplayName,
		TotalMessages:   user.TotalMessages,
		RepliedMessages: user.RepliedMessages,
		Emotion:         user.Emotion,
		LastSeen:        formatTime(user.LastSeen),
		TopKeywords:     user.TopKeywords,
		Facts:           user.Facts,
	}, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
