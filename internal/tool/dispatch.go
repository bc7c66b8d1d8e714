package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

// ExecuteToolInput dispatches a decoded ToolInputPartial to the registered
// tool matching its kind, translating the decoder's typed sub-input into
// that tool's own JSON input shape. This is the bridge between C5's
// tool-use streaming decoder and C4's tool registry.
func (r *Registry) ExecuteToolInput(ctx context.Context, partial *types.ToolInputPartial, toolCtx *Context) (*Result, error) {
	id := string(partial.Kind)
	t, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("no tool registered for kind %q", partial.Kind)
	}

	input, err := toolInputJSON(partial)
	if err != nil {
		return nil, err
	}

	return t.Execute(ctx, input, toolCtx)
}

func toolInputJSON(partial *types.ToolInputPartial) (json.RawMessage, error) {
	switch partial.Kind {
	case types.ToolSearchFiles:
		in := partial.SearchFiles
		if in == nil {
			return nil, fmt.Errorf("search_files: missing input")
		}
		return json.Marshal(GrepInput{Pattern: in.RegexPattern, Path: in.DirectoryPath, Include: in.FilePattern})
	case types.ToolReadFile:
		in := partial.ReadFile
		if in == nil {
			return nil, fmt.Errorf("read_file: missing input")
		}
		return json.Marshal(ReadInput{FilePath: in.FsFilePath})
	case types.ToolCodeEditing:
		in := partial.CodeEditing
		if in == nil {
			return nil, fmt.Errorf("code_editing: missing input")
		}
		return json.Marshal(CodeEditInput{FsFilePath: in.FsFilePath, Instruction: in.Instruction})
	case types.ToolListFiles:
		in := partial.ListFiles
		if in == nil {
			return nil, fmt.Errorf("list_files: missing input")
		}
		return json.Marshal(ListInput{Path: in.DirectoryPath})
	case types.ToolDiagnostics:
		return json.Marshal(struct{}{})
	case types.ToolTerminalCommand:
		in := partial.TerminalCommand
		if in == nil {
			return nil, fmt.Errorf("terminal_command: missing input")
		}
		return json.Marshal(BashInput{Command: in.Command, Description: "agent-requested command"})
	case types.ToolAttemptCompletion:
		if partial.AttemptCompletion == nil {
			return nil, fmt.Errorf("attempt_completion: missing input")
		}
		return json.Marshal(partial.AttemptCompletion)
	case types.ToolAskFollowupQuestion:
		if partial.AskFollowupQuestion == nil {
			return nil, fmt.Errorf("ask_followup_question: missing input")
		}
		return json.Marshal(partial.AskFollowupQuestion)
	case types.ToolRepoMapGeneration:
		if partial.RepoMapGeneration == nil {
			return nil, fmt.Errorf("repo_map_generation: missing input")
		}
		return json.Marshal(partial.RepoMapGeneration)
	case types.ToolTestRunner:
		if partial.TestRunner == nil {
			return nil, fmt.Errorf("test_runner: missing input")
		}
		return json.Marshal(partial.TestRunner)
	default:
		return nil, fmt.Errorf("unknown tool kind %q", partial.Kind)
	}
}
