package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bowerhall/partscout/internal/budget"
	"github.com/bowerhall/partscout/internal/llm"
	"github.com/bowerhall/partscout/internal/logger"
	"github.com/bowerhall/partscout/internal/tools"
)

// maxObservationChars caps a tool result as the model sees it.
const maxObservationChars = 8000

const systemPrompt = `You help customers of PartSelect, an appliance parts retailer, with refrigerator and dishwasher parts: finding parts, checking compatibility, installing them and troubleshooting.

You answer only by calling tools. Another component writes the reply to the customer from the tool results, so once you have what the question needs, stop calling tools and reply with a short note saying you are done.

How to choose tools:
- A part named by anything other than a PS number: call resolve_part first.
- Basic information about a part: get_part only. Add search_repair_stories for installation questions, search_reviews for quality or buying questions and search_qna for technical questions.
- Compatibility: check_compatibility when the customer gives both a part and a model. get_compatible_models only when they ask which models a part fits; it can be large.
- A described problem with no part named: get_symptoms only. Do not call get_repair_instructions for it.
- "How do I check or test" a part type: get_repair_instructions with the symptom already established in the conversation. Keep using that symptom until the customer changes the subject.
- Browsing ("cheap dishwasher racks"): search_parts with filters.
- Follow-ups about "this part" use the most recent part below. "These", "them" or "which one" cover every recent part; compare_parts takes them together.
- Parts missing from the catalog are fetched from the live site automatically by get_part. After that, the other part tools read the fetched data; do not repeat calls that already returned.
- Only refrigerator and dishwasher parts are in scope. Never call a tool about other appliances.`

// LLMDecider asks a tool-calling model for the next action. A response with
// several tool calls is buffered and released one call per iteration; the
// model is consulted again only once every buffered call has an observation.
type LLMDecider struct {
	model    llm.LLM
	tools    []llm.Tool
	budget   *budget.Tracker
	provider string
}

func NewLLMDecider(model llm.LLM, registry *tools.Registry, tracker *budget.Tracker, provider string) *LLMDecider {
	return &LLMDecider{
		model:    model,
		tools:    registry.Tools(),
		budget:   tracker,
		provider: provider,
	}
}

// transcript is the per-turn conversation with the model, carried in
// Decision.Memo.
type transcript struct {
	messages []llm.Message
	queue    []llm.ToolCall
	// callIDs[i] is the tool call that produced observation i
	callIDs []string
	seen    int
	done    bool
}

func (d *LLMDecider) Decide(ctx context.Context, step Step) (Decision, error) {
	tr, _ := step.Memo.(*transcript)
	if tr == nil {
		tr = &transcript{messages: openingMessages(step)}
	}

	for ; tr.seen < len(step.Observations); tr.seen++ {
		obs := step.Observations[tr.seen]
		id := ""
		if tr.seen < len(tr.callIDs) {
			id = tr.callIDs[tr.seen]
		}
		tr.messages = append(tr.messages, observationMessage(obs, id))
	}

	if len(tr.queue) > 0 {
		return tr.release(), nil
	}
	if tr.done {
		return Decision{Finish: true, Memo: tr}, nil
	}

	if d.budget != nil && d.budget.Exhausted() {
		return Decision{}, ErrBudgetExhausted
	}

	resp, err := d.model.ChatWithTools(ctx, systemPrompt, tr.messages, d.tools)
	if err != nil {
		return Decision{}, fmt.Errorf("llm decide: %w", err)
	}

	if resp.Usage != nil && d.budget != nil {
		call := budget.Call{
			Provider: d.provider,
			Model:    d.model.Model(),
			Purpose:  budget.PurposeDecide,
			Input:    resp.Usage.PromptTokens,
			Output:   resp.Usage.CompletionTokens,
		}
		if !d.budget.Record(ctx, call) {
			return Decision{}, ErrBudgetExhausted
		}
	}

	tr.messages = append(tr.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

	if len(resp.ToolCalls) == 0 {
		logger.Debug("llm finished gathering", "iteration", step.Iteration)
		tr.done = true
		return Decision{Finish: true, Memo: tr}, nil
	}

	logger.Debug("llm requested tools", "count", len(resp.ToolCalls), "iteration", step.Iteration)
	tr.queue = append(tr.queue, resp.ToolCalls...)
	return tr.release(), nil
}

func (tr *transcript) release() Decision {
	tc := tr.queue[0]
	tr.queue = tr.queue[1:]
	tr.callIDs = append(tr.callIDs, tc.ID)

	args := json.RawMessage(tc.Arguments)
	if strings.TrimSpace(tc.Arguments) == "" {
		args = json.RawMessage(`{}`)
	}
	return Decision{Tool: tc.Name, Args: args, Memo: tr}
}

// openingMessages replays the session history and states the query with
// the context the resolver established.
func openingMessages(step Step) []llm.Message {
	msgs := make([]llm.Message, 0, len(step.History)+1)
	for _, m := range step.History {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	var sb strings.Builder
	if targets := step.Resolution.Targets(); len(targets) > 0 {
		fmt.Fprintf(&sb, "Parts this message is about: %s\n", strings.Join(targets, ", "))
	}
	if len(step.Resolution.Models) > 0 {
		fmt.Fprintf(&sb, "Model or part numbers in the message: %s\n", strings.Join(step.Resolution.Models, ", "))
	}
	if t := step.Topic; t != nil {
		fmt.Fprintf(&sb, "Conversation topic: %s", t.ApplianceType)
		if t.Symptom != "" {
			fmt.Fprintf(&sb, ", symptom %q", t.Symptom)
		}
		sb.WriteString("\n")
	}
	if step.Resolution.Unresolved {
		sb.WriteString("The message refers to an earlier part, but none was discussed yet.\n")
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(step.Query)

	return append(msgs, llm.Message{Role: llm.RoleUser, Content: sb.String()})
}

func observationMessage(obs tools.Observation, callID string) llm.Message {
	if !obs.OK() {
		return llm.Message{
			Role:       llm.RoleTool,
			Content:    fmt.Sprintf("Error (%s): %s", obs.Failure.Kind, obs.Failure.Message),
			ToolCallID: callID,
			IsError:    true,
		}
	}

	data, err := json.Marshal(obs.Result)
	if err != nil {
		return llm.Message{Role: llm.RoleTool, Content: "Error: unreadable result", ToolCallID: callID, IsError: true}
	}

	content := string(data)
	if len(content) > maxObservationChars {
		cut := maxObservationChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + "...(truncated)"
	}
	return llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: callID}
}
