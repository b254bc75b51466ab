package domain

import (
	"strings"
	"time"
)

// Scope is the conversation scope of an event
type Scope string

const (
	ScopeGroup   Scope = "group"
	ScopePrivate Scope = "private"
)

// SegmentKind identifies a rich message segment
type SegmentKind string

const (
	SegmentMention SegmentKind = "mention"
	SegmentReply   SegmentKind = "reply"
	SegmentImage   SegmentKind = "image"
)

// SelfID stands for the agent itself in mention and reply segments.
// Inbound adapters rewrite the bot's platform id to it.
const SelfID = "self"

// Segment is one rich part of a message
type Segment struct {
	Kind SegmentKind
	// UserID is the mentioned user, or the author of the replied-to message
	UserID string
	// MessageID is the replied-to message id
	MessageID string
	// Ref is an image key or URL
	Ref string
}

// ChatEvent represents one inbound message. It is never mutated after
// the inbound adapter builds it.
type ChatEvent struct {
	Scope      Scope
	UserID     string
	GroupID    string // empty for private chats
	MessageID  string // platform message id, may be empty
	Text       string
	Segments   []Segment
	SenderName string
	Time       time.Time // zero falls back to the process clock
}

// IsGroup reports whether the event came from a group chat
func (e *ChatEvent) IsGroup() bool {
	return e.Scope == ScopeGroup
}

// SessionKey returns the conversational session id
func (e *ChatEvent) SessionKey() string {
	return SessionKey(e.Scope, e.GroupID, e.UserID)
}

// SessionKey builds a session id from its parts
func SessionKey(scope Scope, groupID, userID string) string {
	if scope == ScopeGroup {
		return "group:" + groupID + ":user:" + userID
	}
	return "private:" + userID
}

// GroupOfSessionKey returns the group id encoded in a group session key
func GroupOfSessionKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "group:") {
		return "", false
	}
	rest := strings.TrimPrefix(key, "group:")
	idx := strings.LastIndex(rest, ":user:")
	if idx < 0 {
		return "", false
	}
	return rest[:idx], true
}

// NormalizedText returns the trimmed text
func (e *ChatEvent) NormalizedText() string {
	return strings.TrimSpace(e.Text)
}

// Visuals returns the image references attached to the event
func (e *ChatEvent) Visuals() []string {
	var refs []string
	for _, seg := range e.Segments {
		if seg.Kind == SegmentImage && seg.Ref != "" {
			refs = append(refs, seg.Ref)
		}
	}
	return refs
}

// HasVisuals reports whether any image is attached
func (e *ChatEvent) HasVisuals() bool {
	for _, seg := range e.Segments {
		if seg.Kind == SegmentImage {
			return true
		}
	}
	return false
}

// Mentions reports whether userID is mentioned
func (e *ChatEvent) Mentions(userID string) bool {
	if userID == "" {
		return false
	}
	for _, seg := range e.Segments {
		if seg.Kind == SegmentMention && seg.UserID == userID {
			return true
		}
	}
	return false
}

// RepliesTo reports whether the event replies to a message authored by userID
func (e *ChatEvent) RepliesTo(userID string) bool {
	if userID == "" {
		return false
	}
	for _, seg := range e.Segments {
		if seg.Kind == SegmentReply && seg.UserID == userID {
			return true
		}
	}
	return false
}

// TimeOr returns the event time, or fallback when unset
func (e *ChatEvent) TimeOr(fallback time.Time) time.Time {
	if e.Time.IsZero() {
		return fallback
	}
	return e.Time
}
