package domain

import "time"

// Fact is a long-term memory entry about a user
type Fact struct {
	ID        int64
	UserID    string
	GroupID   string
	Content   string
	CreatedAt time.Time
}

// MemoryContext is what the memory store returns before planning
type MemoryContext struct {
	UserDisplayName   string
	LongTermFacts     []string
	ArchivedSummaries []string
}

// IsEmpty checks if nothing was recalled
func (m *MemoryContext) IsEmpty() bool {
	return m == nil || (len(m.LongTermFacts) == 0 && len(m.ArchivedSummaries) == 0)
}

// GenerationSource tells where generated text came from
type GenerationSource string

const (
	FromLLM      GenerationSource = "llm"
	FromFallback GenerationSource = "fallback"
)

// Generation is the generator output
type Generation struct {
	Text string
	From GenerationSource
}
