package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/coderunner-dev/agentcore/internal/codeparser"
	"github.com/coderunner-dev/agentcore/internal/editorhost"
	"github.com/coderunner-dev/agentcore/internal/symbol"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

// CodeEditTool implements the code_editing tool kind: given only a target
// file and a free-form instruction, it hands the edit off to the symbol
// actor for the file's top-level symbol rather than doing a literal
// string replace (that's EditTool's job, and EditTool requires an exact
// old/new string an LLM issuing a bare instruction doesn't have).
type CodeEditTool struct {
	workDir string
	hub     symbol.Hub
}

type CodeEditInput struct {
	FsFilePath  string `json:"fsFilePath"`
	Instruction string `json:"instruction"`
}

const codeEditDescription = `Requests an edit to a file given a natural-language instruction.

Usage:
- fsFilePath and instruction are required
- The instruction describes what should change; the symbol runtime locates
  the relevant code and performs the edit
- Prefer this over a literal search/replace when you don't know the exact
  text to match`

func NewCodeEditTool(workDir string, hub symbol.Hub) *CodeEditTool {
	return &CodeEditTool{workDir: workDir, hub: hub}
}

func (t *CodeEditTool) ID() string          { return string(types.ToolCodeEditing) }
func (t *CodeEditTool) Description() string { return codeEditDescription }

func (t *CodeEditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"fsFilePath": {"type": "string", "description": "Path of the file to edit"},
			"instruction": {"type": "string", "description": "What to change"}
		},
		"required": ["fsFilePath", "instruction"]
	}`)
}

func (t *CodeEditTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params CodeEditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.FsFilePath == "" || params.Instruction == "" {
		return nil, fmt.Errorf("fsFilePath and instruction are required")
	}

	target := types.SymbolIdentifier{FsFilePath: &params.FsFilePath}
	ev := types.SymbolEvent{
		Kind:           types.SymbolEventInitialRequest,
		InitialRequest: &types.InitialRequestEvent{Query: params.Instruction},
	}

	sessionID := ""
	if toolCtx != nil {
		sessionID = toolCtx.SessionID
	}
	resp := <-t.hub.Dispatch(ctx, sessionID, "", target, ev, nil)
	if resp.Kind == types.SymbolResponseError && resp.Err != nil {
		return nil, resp.Err
	}

	return &Result{
		Title:    params.FsFilePath,
		Output:   fmt.Sprintf("edit requested for %s", params.FsFilePath),
		Metadata: map[string]any{},
	}, nil
}

func (t *CodeEditTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// DiagnosticsTool implements get_diagnostics: fetch compiler/linter
// diagnostics for the whole workspace from the editor sidecar.
type DiagnosticsTool struct {
	workDir string
	host    editorhost.Host
}

func NewDiagnosticsTool(workDir string, host editorhost.Host) *DiagnosticsTool {
	return &DiagnosticsTool{workDir: workDir, host: host}
}

func (t *DiagnosticsTool) ID() string          { return string(types.ToolDiagnostics) }
func (t *DiagnosticsTool) Description() string { return "Fetches current diagnostics for the workspace." }

func (t *DiagnosticsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *DiagnosticsTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	diags, err := t.host.Diagnostics(ctx, t.workDir)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}

	var sb strings.Builder
	for path, ds := range diags {
		for _, d := range ds {
			fmt.Fprintf(&sb, "%s:%d:%d: %s\n", path, d.Range.Start.Line, d.Range.Start.Col, d.Message)
		}
	}

	return &Result{Title: "diagnostics", Output: sb.String(), Metadata: map[string]any{"count": len(diags)}}, nil
}

func (t *DiagnosticsTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// AttemptCompletionTool implements attempt_completion: the agent declares
// it believes the task is done, optionally naming a command to demonstrate
// the result. It performs no side effect itself; the session/exchange
// layer reads the result text to close out the exchange.
type AttemptCompletionTool struct{}

func NewAttemptCompletionTool() *AttemptCompletionTool { return &AttemptCompletionTool{} }

func (t *AttemptCompletionTool) ID() string          { return string(types.ToolAttemptCompletion) }
func (t *AttemptCompletionTool) Description() string { return "Signals the task is complete." }

func (t *AttemptCompletionTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"result": {"type": "string", "description": "Summary of what was accomplished"},
			"command": {"type": "string", "description": "Optional command demonstrating the result"}
		},
		"required": ["result"]
	}`)
}

func (t *AttemptCompletionTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params types.AttemptCompletionInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Result == "" {
		return nil, fmt.Errorf("result is required")
	}
	return &Result{Title: "attempt_completion", Output: params.Result, Metadata: map[string]any{"command": params.Command}}, nil
}

func (t *AttemptCompletionTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// AskFollowupQuestionTool implements ask_followup_question: the agent
// surfaces a question to the user instead of guessing. Like
// AttemptCompletionTool it has no side effect of its own; the caller
// (session/exchange layer) is responsible for posting the question as a
// UI event and pausing the exchange for a reply.
type AskFollowupQuestionTool struct{}

func NewAskFollowupQuestionTool() *AskFollowupQuestionTool { return &AskFollowupQuestionTool{} }

func (t *AskFollowupQuestionTool) ID() string          { return string(types.ToolAskFollowupQuestion) }
func (t *AskFollowupQuestionTool) Description() string { return "Asks the user a clarifying question." }

func (t *AskFollowupQuestionTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"question": {"type": "string"}},
		"required": ["question"]
	}`)
}

func (t *AskFollowupQuestionTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params types.AskFollowupQuestionInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Question == "" {
		return nil, fmt.Errorf("question is required")
	}
	return &Result{Title: "ask_followup_question", Output: params.Question, Metadata: map[string]any{}}, nil
}

func (t *AskFollowupQuestionTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

// RepoMapTool implements repo_map_generation: a directory-wide outline
// summary, grounded on codeparser's OutlineNodes extraction (the same
// heuristic parser the symbol runtime uses for Go/TS/Python/Rust outlines).
type RepoMapTool struct {
	workDir string
	parser  codeparser.Parser
}

func NewRepoMapTool(workDir string, parser codeparser.Parser) *RepoMapTool {
	return &RepoMapTool{workDir: workDir, parser: parser}
}

func (t *RepoMapTool) ID() string          { return string(types.ToolRepoMapGeneration) }
func (t *RepoMapTool) Description() string { return "Generates an outline map of a directory's source files." }

func (t *RepoMapTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"directoryPath": {"type": "string"}},
		"required": ["directoryPath"]
	}`)
}

func (t *RepoMapTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params types.RepoMapGenerationInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.DirectoryPath == "" {
		return nil, fmt.Errorf("directoryPath is required")
	}

	var sb strings.Builder
	walkErr := filepath.WalkDir(params.DirectoryPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !looksLikeSourceFile(path) {
			return nil
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		nodes := t.parser.OutlineNodes(languageIDForPath(path), path, string(buf))
		if len(nodes) == 0 {
			return nil
		}
		fmt.Fprintf(&sb, "%s\n", path)
		for _, n := range nodes {
			fmt.Fprintf(&sb, "  %s\n", n.Name)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("repo map: %w", walkErr)
	}

	return &Result{Title: params.DirectoryPath, Output: sb.String(), Metadata: map[string]any{}}, nil
}

func (t *RepoMapTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

func looksLikeSourceFile(path string) bool {
	for _, ext := range []string{".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rs"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func languageIDForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".py"):
		return "python"
	case strings.HasSuffix(path, ".rs"):
		return "rust"
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".tsx"):
		return "typescript"
	default:
		return "javascript"
	}
}

// TestRunnerTool implements test_runner: run the test suite covering the
// named files. Grounded on BashTool's process-group execution; the test
// command itself is resolved per-language the same way internal/formatter
// resolves a formatter command.
type TestRunnerTool struct {
	workDir string
	bash    *BashTool
}

func NewTestRunnerTool(workDir string) *TestRunnerTool {
	return &TestRunnerTool{workDir: workDir, bash: NewBashTool(workDir)}
}

func (t *TestRunnerTool) ID() string          { return string(types.ToolTestRunner) }
func (t *TestRunnerTool) Description() string { return "Runs tests covering the given files." }

func (t *TestRunnerTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"fsFilePaths": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["fsFilePaths"]
	}`)
}

func (t *TestRunnerTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params types.TestRunnerInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(params.FsFilePaths) == 0 {
		return nil, fmt.Errorf("fsFilePaths is required")
	}

	cmd := testCommandFor(params.FsFilePaths)
	bashInput, err := json.Marshal(BashInput{Command: cmd, Description: "run tests"})
	if err != nil {
		return nil, err
	}
	return t.bash.Execute(ctx, bashInput, toolCtx)
}

func (t *TestRunnerTool) EinoTool() einotool.InvokableTool { return &einoToolWrapper{tool: t} }

func testCommandFor(paths []string) string {
	for _, p := range paths {
		switch {
		case strings.HasSuffix(p, ".go"):
			return "go test ./..."
		case strings.HasSuffix(p, ".py"):
			return "pytest"
		case strings.HasSuffix(p, ".ts"), strings.HasSuffix(p, ".tsx"), strings.HasSuffix(p, ".js"):
			return "npm test"
		case strings.HasSuffix(p, ".rs"):
			return "cargo test"
		}
	}
	return "echo 'no test runner resolved for given files' >&2; exit 1"
}
