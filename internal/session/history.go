package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/coderunner-dev/agentcore/internal/storage"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

// renderHistory converts every exchange recorded for a session into one
// chat turn each, oldest first, for inclusion as conversational context
// ahead of a new LLM call. ExchangeID is a ULID, so sorting by it sorts by
// creation order without a separate timestamp field.
//
// Agent tool exchanges render as <thinking>...</thinking> followed by the
// partial tool XML the streaming decoder would have produced for the same
// call; rejected edits render as a literal "I made the following edits and
// the user REJECTED them" marker rather than a diff the model might try to
// repeat, so rejection is visible in-band rather than only in exchange
// state the model never sees.
func renderHistory(ctx context.Context, store *storage.Storage, sessionID string) (string, error) {
	var exchanges []types.Exchange
	err := store.Scan(ctx, []string{"exchange", sessionID}, func(key string, data json.RawMessage) error {
		var ex types.Exchange
		if err := json.Unmarshal(data, &ex); err != nil {
			return nil
		}
		exchanges = append(exchanges, ex)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].ExchangeID < exchanges[j].ExchangeID })

	var b strings.Builder
	for i := range exchanges {
		turn := renderTurn(&exchanges[i])
		if turn == "" {
			continue
		}
		b.WriteString(turn)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func renderTurn(ex *types.Exchange) string {
	switch ex.Type.Kind {
	case types.ExchangeTypeHumanChat:
		if ex.Type.Reply != nil && ex.Type.Reply.Chat != nil {
			return "Assistant: " + ex.Type.Reply.Chat.Reply
		}
		return ""
	case types.ExchangeTypePlan:
		if ex.Type.Reply != nil && ex.Type.Reply.Plan != nil {
			return renderPlanTurn(ex.Type.Reply.Plan)
		}
		return ""
	case types.ExchangeTypeEdit:
		return renderEditTurn(ex)
	case types.ExchangeTypeAgentChat:
		return renderAgentChatTurn(ex)
	default:
		return ""
	}
}

func renderPlanTurn(p *types.PlanReply) string {
	if len(p.Steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Assistant proposed a plan:\n")
	for _, step := range p.Steps {
		fmt.Fprintf(&b, "%d. %s - %s\n", step.Index, step.Title, step.Description)
	}
	if p.Discarded {
		b.WriteString("The user discarded this plan.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEditTurn(ex *types.Exchange) string {
	if ex.Type.Reply == nil || ex.Type.Reply.Edit == nil {
		return ""
	}
	edit := ex.Type.Reply.Edit
	if !edit.Accepted && ex.State == types.ExchangeStateRejected {
		return "I made the following edits and the user REJECTED them:\n" + edit.Diff
	}
	return "Assistant made the following edits:\n" + edit.Diff
}

// renderAgentChatTurn renders an AgentChat exchange per its reply kind.
func renderAgentChatTurn(ex *types.Exchange) string {
	if ex.Type.Reply == nil {
		return ""
	}
	switch ex.Type.Reply.Kind {
	case types.AgentReplyTool:
		return renderToolReplyTurn(ex.Type.Reply.Tool)
	case types.AgentReplyEdit:
		return renderEditTurn(ex)
	case types.AgentReplyChat:
		if ex.Type.Reply.Chat != nil {
			return "Assistant: " + ex.Type.Reply.Chat.Reply
		}
	case types.AgentReplyPlan:
		if ex.Type.Reply.Plan != nil {
			return renderPlanTurn(ex.Type.Reply.Plan)
		}
	}
	return ""
}

// renderToolReplyTurn implements §4.7's "agent tool exchanges render as
// <thinking>...</thinking> followed by the partial tool XML" conversion.
func renderToolReplyTurn(t *types.ToolReply) string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	if t.Thinking != "" {
		b.WriteString("<thinking>\n")
		b.WriteString(t.Thinking)
		b.WriteString("\n</thinking>\n")
	}
	b.WriteString(renderToolInputXML(types.ToolKind(t.ToolType), t.PartialInput))
	return strings.TrimRight(b.String(), "\n")
}

// toolTag maps a ToolKind back to the tag name the streaming decoder
// resolves it from; most kinds match their own string value, the three
// below don't.
func toolTag(kind types.ToolKind) string {
	switch kind {
	case types.ToolCodeEditing:
		return "code_edit_input"
	case types.ToolDiagnostics:
		return "get_diagnostics"
	case types.ToolTerminalCommand:
		return "execute_command"
	default:
		return string(kind)
	}
}

// renderToolInputXML re-serializes a ToolInputPartial back into the tag
// shape internal/decoder parses it from, param names included, so a
// rendered history turn round-trips through the same grammar the model
// itself produces.
func renderToolInputXML(kind types.ToolKind, input *types.ToolInputPartial) string {
	if input == nil {
		return ""
	}
	tag := toolTag(kind)
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>\n", tag)
	switch kind {
	case types.ToolSearchFiles:
		if in := input.SearchFiles; in != nil {
			writeParam(&b, "directory_path", in.DirectoryPath)
			writeParam(&b, "regex_pattern", in.RegexPattern)
			if in.FilePattern != "" {
				writeParam(&b, "file_pattern", in.FilePattern)
			}
		}
	case types.ToolReadFile:
		if in := input.ReadFile; in != nil {
			writeParam(&b, "fs_file_path", in.FsFilePath)
		}
	case types.ToolCodeEditing:
		if in := input.CodeEditing; in != nil {
			writeParam(&b, "fs_file_path", in.FsFilePath)
			writeParam(&b, "instruction", in.Instruction)
		}
	case types.ToolListFiles:
		if in := input.ListFiles; in != nil {
			writeParam(&b, "directory_path", in.DirectoryPath)
			writeParam(&b, "recursive", fmt.Sprintf("%v", in.Recursive))
		}
	case types.ToolDiagnostics:
		// no params
	case types.ToolTerminalCommand:
		if in := input.TerminalCommand; in != nil {
			writeParam(&b, "command", in.Command)
		}
	case types.ToolAttemptCompletion:
		if in := input.AttemptCompletion; in != nil {
			writeParam(&b, "result", in.Result)
			if in.Command != "" {
				writeParam(&b, "command", in.Command)
			}
		}
	case types.ToolAskFollowupQuestion:
		if in := input.AskFollowupQuestion; in != nil {
			writeParam(&b, "question", in.Question)
		}
	case types.ToolRepoMapGeneration:
		if in := input.RepoMapGeneration; in != nil {
			writeParam(&b, "directory_path", in.DirectoryPath)
		}
	case types.ToolTestRunner:
		if in := input.TestRunner; in != nil {
			fmt.Fprintf(&b, "<fs_file_paths>\n%s\n</fs_file_paths>\n", strings.Join(in.FsFilePaths, "\n"))
		}
	}
	fmt.Fprintf(&b, "</%s>", tag)
	return b.String()
}

func writeParam(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "<%s>\n%s\n</%s>\n", name, value, name)
}
