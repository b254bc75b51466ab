package usecase

import (
	"fmt"
	"strings"

	"github.com/ovo-bot/ovo-agent/internal/biz/domain"
)

// PromptConfig contains prompt configuration
type PromptConfig struct {
	Persona           string                         // System prompt
	StyleInstructions map[domain.StyleVariant]string // Tone hint per style
	FallbackText      string                         // Sent when generation returns nothing
}

// DefaultPromptConfig returns the default prompt configuration
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		Persona: `你是群聊里的小助手 ovo。说话自然、简短，像朋友聊天一样。
不要自称 AI 模型，不要输出元描述（例如“以下是回复”），直接给出要发送的内容。
群聊里只回应和你相关的内容，不确定时宁可简短。`,
		StyleInstructions: map[domain.StyleVariant]string{
			domain.StyleDefault: "语气自然。",
			domain.StyleWarm:    "语气温柔体贴，先照顾对方的情绪。",
			domain.StylePlayful: "语气轻松俏皮，可以带一点玩笑。",
			domain.StyleConcise: "回答简洁直接，一两句话说清楚。",
		},
		FallbackText: "嗯嗯，我在～",
	}
}

// PromptInput is what one generation prompt is built from
type PromptInput struct {
	Event       *domain.ChatEvent
	Text        string
	Plan        domain.ChatActionPlan
	State       domain.PromptState
	Memory      *domain.MemoryContext
	ToolContext string
}

// PromptBuilder renders generation prompts
type PromptBuilder struct {
	cfg PromptConfig
}

// NewPromptBuilder creates a new prompt builder
func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	return &PromptBuilder{cfg: cfg}
}

// FallbackText returns the canned reply for empty generations
func (b *PromptBuilder) FallbackText() string {
	return b.cfg.FallbackText
}

// Build returns the system prompt and the user prompt
func (b *PromptBuilder) Build(in PromptInput) (string, string) {
	var system strings.Builder
	system.WriteString(strings.TrimSpace(b.cfg.Persona))
	if style, ok := b.cfg.StyleInstructions[in.Plan.Style]; ok && style != "" {
		system.WriteString("\n\n风格要求：")
		system.WriteString(style)
	}

	var sb strings.Builder

	// Conversation context
	name := in.State.DisplayName
	if name == "" {
		name = in.Event.UserID
	}
	if in.Event.IsGroup() {
		sb.WriteString(fmt.Sprintf("[场景] 群聊，群活跃度 %s，近期 %d 条消息、%d 人参与\n",
			in.State.ActivityTier, in.State.RecentCount, in.State.Participants))
		if in.State.Topic != "" {
			sb.WriteString(fmt.Sprintf("[当前话题] %s\n", in.State.Topic))
		}
	} else {
		sb.WriteString("[场景] 私聊\n")
	}
	sb.WriteString(fmt.Sprintf("[对方] %s，熟悉度 %s，情绪 %s\n", name, in.State.AffinityTier, in.State.Emotion))

	// Long-term memory
	if !in.Memory.IsEmpty() {
		if len(in.Memory.LongTermFacts) > 0 {
			sb.WriteString("\n[关于对方的记忆]\n")
			for _, f := range in.Memory.LongTermFacts {
				sb.WriteString("- " + f + "\n")
			}
		}
		if len(in.Memory.ArchivedSummaries) > 0 {
			sb.WriteString("\n[以往对话摘要]\n")
			for _, s := range in.Memory.ArchivedSummaries {
				sb.WriteString("- " + s + "\n")
			}
		}
	}

	// Tool context
	if in.ToolContext != "" {
		sb.WriteString("\n[工具结果]\n")
		sb.WriteString(in.ToolContext)
		sb.WriteString("\n")
	}

	// Current message
	sb.WriteString("\n[对方刚说]\n")
	if in.Text != "" {
		sb.WriteString(in.Text)
	} else if in.Event.HasVisuals() {
		sb.WriteString("（发了一张图片）")
	} else {
		sb.WriteString("（@了你）")
	}
	sb.WriteString("\n")

	return system.String(), sb.String()
}
