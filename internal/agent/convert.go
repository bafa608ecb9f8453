package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// ToModelMessages converts room messages into provider messages. Context
// messages are tagged as already seen, newMsgs as new. When asAgentID is set,
// that member's messages become assistant turns and everyone else's user
// turns; otherwise agents map to assistant and users to user.
func ToModelMessages(contextMsgs, newMsgs []store.Message, asAgentID string) []providers.Message {
	out := make([]providers.Message, 0, len(contextMsgs)+len(newMsgs))
	for i := range contextMsgs {
		out = append(out, messageToModel(&contextMsgs[i], false, asAgentID)...)
	}
	for i := range newMsgs {
		out = append(out, messageToModel(&newMsgs[i], true, asAgentID)...)
	}
	return out
}

func messageToModel(m *store.Message, isNew bool, asAgentID string) []providers.Message {
	name, typ := "unknown", "unknown"
	if m.Member != nil {
		name, typ = m.Member.Name, string(m.Member.Type)
	}
	meta := fmt.Sprintf(`<message-metadata member-id=%q member-name=%q member-type=%q is-new-message="%t" />`,
		m.MemberID, name, typ, isNew)

	assistant := typ == string(store.MemberTypeAgent)
	if asAgentID != "" {
		assistant = m.MemberID == asAgentID
	}
	if assistant && asAgentID != "" {
		return ownTurnMessages(meta, m.Parts)
	}

	role := "user"
	if assistant {
		role = "assistant"
	}
	return []providers.Message{{Role: role, Content: withMeta(meta, describeParts(m.Parts))}}
}

// ownTurnMessages replays the agent's own message as assistant turns with
// paired tool calls and results. Calls without a stored result are dropped.
func ownTurnMessages(meta string, parts []store.Part) []providers.Message {
	results := make(map[string]store.Part)
	for _, p := range parts {
		if p.Type == store.PartToolResult {
			results[p.ToolCallID] = p
		}
	}

	var (
		out     []providers.Message
		texts   []string
		calls   []providers.ToolCall
		toolMsg []providers.Message
	)
	flush := func() {
		if len(texts) == 0 && len(calls) == 0 {
			return
		}
		out = append(out, providers.Message{
			Role:      "assistant",
			Content:   withMeta(meta, strings.Join(texts, "\n")),
			ToolCalls: calls,
		})
		out = append(out, toolMsg...)
		texts, calls, toolMsg = nil, nil, nil
	}

	for _, p := range parts {
		switch p.Type {
		case store.PartText:
			if len(calls) > 0 {
				flush()
			}
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		case store.PartToolCall:
			res, ok := results[p.ToolCallID]
			if !ok {
				continue
			}
			args := map[string]any{}
			if len(p.Input) > 0 {
				_ = json.Unmarshal(p.Input, &args)
			}
			calls = append(calls, providers.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Arguments: args})
			toolMsg = append(toolMsg, providers.Message{
				Role:       "tool",
				Content:    string(res.Output),
				ToolCallID: p.ToolCallID,
			})
		}
	}
	flush()
	if len(out) == 0 {
		out = append(out, providers.Message{Role: "assistant", Content: meta})
	}
	return out
}

// describeParts renders text plus a short note for each tool the author used.
func describeParts(parts []store.Part) string {
	var b strings.Builder
	for _, p := range parts {
		switch p.Type {
		case store.PartText:
			if p.Text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		case store.PartToolCall:
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[used tool %s]", p.ToolName)
		}
	}
	return b.String()
}

func withMeta(meta, text string) string {
	if text == "" {
		return meta
	}
	return meta + "\n\n" + text
}
