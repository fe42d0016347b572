// Package agent builds and runs session-scoped conversational agents. An
// Agent is a transient in-process handle; its durable state (memory,
// history) lives in backing stores keyed by the session key.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindmark/mindmark-server/internal/agent/history"
	"github.com/mindmark/mindmark-server/internal/agent/memory"
	"github.com/mindmark/mindmark-server/internal/llm"
	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/websearch"
)

const systemPrompt = `You are a memory-enabled research assistant. Answer in markdown.
Use the web_search tool when the question needs current or factual information.`

const extractPrompt = `Distill the following exchange into one short factual insight about the user or topic, suitable for long-term memory. Reply with the insight only, or NONE if nothing is worth remembering.`

// maxToolRounds bounds the tool-call loop so a misbehaving model cannot spin.
const maxToolRounds = 4

// Agent is bound to exactly one session key for its lifetime.
type Agent struct {
	key    session.Key
	cfg    RuntimeConfig
	llm    llm.CompletionClient
	hist   history.Store
	mem    memory.Store
	search websearch.Searcher
	log    zerolog.Logger
}

// Key returns the session key this agent is bound to.
func (a *Agent) Key() session.Key { return a.key }

// Run executes one conversational turn and returns the assistant's reply.
// The exchange is appended to the session's history store; if long-term
// memory is enabled an insight is extracted and stored asynchronously.
func (a *Agent) Run(ctx context.Context, userText string) (string, error) {
	msgs, err := a.assemble(ctx, userText)
	if err != nil {
		return "", err
	}

	var tools []llm.Tool
	if a.cfg.EnableSearch && a.search != nil {
		tools = []llm.Tool{searchToolSpec()}
	}

	var reply llm.Message
	for round := 0; ; round++ {
		reply, err = a.llm.Complete(ctx, a.cfg.ModelID, msgs, tools)
		if err != nil {
			return "", fmt.Errorf("agent completion: %w", err)
		}
		if len(reply.ToolCalls) == 0 || round >= maxToolRounds {
			break
		}
		msgs = append(msgs, reply)
		for _, tc := range reply.ToolCalls {
			result := a.runTool(ctx, tc)
			msgs = append(msgs, llm.Message{Role: "tool", Content: result, ToolCallID: tc.ID})
		}
	}

	if err := a.hist.Append(ctx, a.key, model.RoleUser, userText); err != nil {
		return "", fmt.Errorf("record user turn: %w", err)
	}
	if err := a.hist.Append(ctx, a.key, model.RoleAssistant, reply.Content); err != nil {
		return "", fmt.Errorf("record assistant turn: %w", err)
	}

	if a.cfg.EnableLongTermMemory {
		a.extractAsync(userText, reply.Content)
	}
	return reply.Content, nil
}

// assemble builds the message list for the model: system prompt, recalled
// memory, injected history, then the user utterance.
func (a *Agent) assemble(ctx context.Context, userText string) ([]llm.Message, error) {
	msgs := []llm.Message{{Role: "system", Content: systemPrompt}}

	if a.cfg.EnableLongTermMemory {
		// recall is best effort; a cold memory store should not block the turn
		frags, err := a.mem.Recall(ctx, a.key.String(), userText, 5)
		if err != nil {
			a.log.Warn().Err(err).Str("session", a.key.String()).Msg("memory recall failed")
		} else if len(frags) > 0 {
			var b strings.Builder
			b.WriteString("Relevant long-term memory:\n")
			for _, f := range frags {
				fmt.Fprintf(&b, "- %s\n", f.Content)
			}
			msgs = append(msgs, llm.Message{Role: "system", Content: b.String()})
		}
	}

	if a.cfg.EnableHistoryInjection {
		turns, err := a.hist.Recent(ctx, a.key, a.cfg.HistoryWindow)
		if err != nil {
			return nil, fmt.Errorf("load session history: %w", err)
		}
		for _, t := range turns {
			msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
		}
	}

	return append(msgs, llm.Message{Role: "user", Content: userText}), nil
}

func (a *Agent) runTool(ctx context.Context, tc llm.ToolCall) string {
	if tc.Function.Name != "web_search" || a.search == nil {
		return fmt.Sprintf("unknown tool: %s", tc.Function.Name)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil || args.Query == "" {
		return "invalid web_search arguments"
	}
	a.log.Info().Str("session", a.key.String()).Str("query", args.Query).Msg("executing web search")
	result, err := a.search.Search(ctx, args.Query)
	if err != nil {
		a.log.Warn().Err(err).Msg("web search failed")
		return fmt.Sprintf("search error: %v", err)
	}
	return result
}

// extractAsync distills the exchange into a memory fragment off the request
// path. Failures are logged, never surfaced.
func (a *Agent) extractAsync(userText, reply string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		exchange := fmt.Sprintf("%s\nUser: %s\nAssistant: %s", extractPrompt, userText, reply)
		out, err := a.llm.Complete(ctx, a.cfg.ModelID, []llm.Message{{Role: "user", Content: exchange}}, nil)
		if err != nil {
			a.log.Warn().Err(err).Str("session", a.key.String()).Msg("memory extraction failed")
			return
		}
		insight := strings.TrimSpace(out.Content)
		if insight == "" || strings.EqualFold(insight, "NONE") {
			return
		}
		if err := a.mem.Remember(ctx, a.key.String(), insight); err != nil {
			a.log.Warn().Err(err).Str("session", a.key.String()).Msg("memory store failed")
		}
	}()
}

func searchToolSpec() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        "web_search",
			Description: "Search the web and return markdown-formatted results.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
