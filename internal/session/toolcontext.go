package session

import (
	"context"
	"strings"

	"github.com/coderunner-dev/agentcore/internal/decoder"
	"github.com/coderunner-dev/agentcore/internal/llmclient"
	"github.com/coderunner-dev/agentcore/internal/symbol"
	"github.com/coderunner-dev/agentcore/internal/tool"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

const toolContextPrompt = `You may gather repository context before answering by emitting exactly one
of these tags and nothing else:

<search_files><directory_path>DIR</directory_path><regex_pattern>PATTERN</regex_pattern></search_files>
<read_file><fs_file_path>PATH</fs_file_path></read_file>
<list_files><directory_path>DIR</directory_path><recursive>true</recursive></list_files>
<repo_map_generation><directory_path>DIR</directory_path></repo_map_generation>

If you need no extra context, reply with nothing.`

// gatherToolContext asks the model whether it needs repository context to
// satisfy query, decodes a single tool-tagged response through the
// streaming tool-use decoder, executes it against the registry, and
// returns the tool's output for inclusion in the editing prompt. Returns
// "" (not an error) when the model declines to use a tool or the decoder
// finds none, since context-gathering is best-effort. Every decoder event
// is mirrored onto hub's UI stream (tool_thinking for thinking deltas,
// tool_found once a tag resolves, tool_parameter per param delta,
// tool_not_found when the decoder gives up) so a client watching the
// exchange's SSE stream sees the same incremental resolution the decoder
// itself goes through.
func gatherToolContext(ctx context.Context, asker llmclient.Asker, toolReg *tool.Registry, hub symbol.Hub, sessionID, exchangeID, workDir, query string) string {
	if asker == nil || toolReg == nil {
		return ""
	}

	answer, err := asker.Ask(ctx, toolContextPrompt, query)
	if err != nil || strings.TrimSpace(answer) == "" {
		return ""
	}

	dec := decoder.New()
	events := dec.Feed(answer)
	events = append(events, dec.Flush()...)

	publishDecoderEvent(hub, sessionID, exchangeID, events)

	for _, ev := range events {
		if ev.Kind != decoder.EventToolReady || ev.ToolInput == nil {
			continue
		}
		result, err := toolReg.ExecuteToolInput(ctx, ev.ToolInput, &tool.Context{WorkDir: workDir})
		if err != nil || result == nil {
			return ""
		}
		return result.Output
	}
	return ""
}

// publishDecoderEvent translates decoder.Events onto the hub's UI stream.
func publishDecoderEvent(hub symbol.Hub, sessionID, exchangeID string, events []decoder.Event) {
	if hub == nil {
		return
	}
	for _, ev := range events {
		base := types.UIEvent{SessionID: sessionID, ExchangeID: exchangeID}
		switch ev.Kind {
		case decoder.EventThinkingDelta:
			base.Kind = types.UIToolThinking
			base.ContentUpToNow = ev.ThinkingCumulative
		case decoder.EventToolFound:
			base.Kind = types.UIToolFound
			base.ToolType = ev.ToolKind
		case decoder.EventParameterDelta:
			base.Kind = types.UIToolParameter
			base.FieldName = ev.FieldName
			base.ContentUpToNow = ev.FieldCumulative
			base.Delta = ev.FieldDelta
		case decoder.EventNoToolFound:
			base.Kind = types.UIToolNotFound
			base.FullOutput = ev.FullOutput
		default:
			continue
		}
		hub.PublishUI(base)
	}
}
