package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	// MaxTokens caps each completion; tool routing and classification need
	// little, so the default is small.
	MaxTokens int
}

// Message is one conversation entry. Tool results use RoleTool and carry the
// id of the call they answer.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	IsError    bool
}

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type ChatResponse struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      *Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type LLM interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (string, error)
	ChatWithTools(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*ChatResponse, error)
	Model() string
}
