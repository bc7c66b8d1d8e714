package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/oklog/ulid/v2"

	"github.com/coderunner-dev/agentcore/internal/editapply"
	"github.com/coderunner-dev/agentcore/internal/event"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

const editDescription = `Performs exact string replacements in files.

Usage:
- The file_path parameter must be an absolute path
- The old_string must exist in the file (exact match required)
- The new_string will replace old_string
- Use replace_all to replace all occurrences
- The edit will FAIL if old_string is not unique (unless using replace_all)`

// EditTool implements file editing. It computes old_string/new_string
// matching itself (exact, then line-ending-normalized, then Levenshtein
// fuzzy fallback, the same three-step strategy internal/editapply's locate
// uses for symbol-range edits) but hands the resulting whole-file text to
// the Applier the symbol actors use, so a model calling "edit" directly
// gets the same streamed-apply, formatting, and diagnostics-driven
// correctness loop instead of a bare os.WriteFile.
type EditTool struct {
	workDir string
	applier editapply.Applier
}

// EditInput represents the input for the edit tool.
type EditInput struct {
	FilePath   string `json:"filePath"`
	OldString  string `json:"oldString"`
	NewString  string `json:"newString"`
	ReplaceAll bool   `json:"replaceAll,omitempty"`
}

// NewEditTool creates a new edit tool bound to applier.
func NewEditTool(workDir string, applier editapply.Applier) *EditTool {
	return &EditTool{workDir: workDir, applier: applier}
}

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return editDescription }

func (t *EditTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to edit"
			},
			"oldString": {
				"type": "string",
				"description": "The exact text to replace"
			},
			"newString": {
				"type": "string",
				"description": "The text to replace it with"
			},
			"replaceAll": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false)"
			}
		},
		"required": ["filePath", "oldString", "newString"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params EditInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if params.OldString == params.NewString {
		return nil, fmt.Errorf("old_string and new_string must be different")
	}

	content, err := os.ReadFile(params.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	text := string(content)

	newText, count, note, err := computeReplacement(text, params)
	if err != nil {
		return nil, err
	}

	lineCount := strings.Count(text, "\n") + 1
	outcome, err := t.applier.Apply(ctx, editapply.Request{
		RequestID:  ulid.Make().String(),
		FsFilePath: params.FilePath,
		Strategy:   editapply.StrategyFullSymbol,
		Target:     types.Range{Start: types.Position{Line: 0}, End: types.Position{Line: lineCount}},
		OldText:    text,
		NewText:    newText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply edit: %w", err)
	}

	if toolCtx != nil && toolCtx.SessionID != "" {
		event.Publish(event.Event{
			Type: event.FileEdited,
			Data: event.FileEditedData{
				File: params.FilePath,
			},
		})
	}

	title := fmt.Sprintf("Edited %s%s", filepath.Base(params.FilePath), note)
	if outcome.Retries > 0 {
		title = fmt.Sprintf("%s (%d correctness retries)", title, outcome.Retries)
	}

	return &Result{
		Title:  title,
		Output: fmt.Sprintf("Replaced %d occurrence(s)%s", count, note),
		Metadata: map[string]any{
			"file":         params.FilePath,
			"replacements": count,
		},
	}, nil
}

// computeReplacement decides the new whole-file contents for an edit
// request: exact substring match first, then line-ending-normalized, then a
// Levenshtein-similarity fallback over line-aligned blocks. note is a short
// human-readable suffix describing which strategy matched, empty for the
// exact-match case.
func computeReplacement(text string, params EditInput) (newText string, count int, note string, err error) {
	if c := strings.Count(text, params.OldString); c > 0 {
		if params.ReplaceAll {
			return strings.ReplaceAll(text, params.OldString, params.NewString), c, "", nil
		}
		if c > 1 {
			return "", 0, "", fmt.Errorf("old_string appears %d times in file. Use replace_all or provide more context", c)
		}
		return strings.Replace(text, params.OldString, params.NewString, 1), 1, "", nil
	}

	normalizedOld := normalizeLineEndings(params.OldString)
	normalizedText := normalizeLineEndings(text)
	if strings.Contains(normalizedText, normalizedOld) {
		return strings.Replace(normalizedText, normalizedOld, params.NewString, 1), 1, " (normalized)", nil
	}

	match, sim := findBestMatch(text, params.OldString)
	if match != "" && sim >= 0.7 {
		return strings.Replace(text, match, params.NewString, 1), 1, fmt.Sprintf(" (fuzzy, %.0f%% similarity)", sim*100), nil
	}

	return "", 0, "", fmt.Errorf("old_string not found in file. The content may have changed or the string doesn't exist")
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// findBestMatch finds the substring most similar to target.
func findBestMatch(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")

	if len(targetLines) == 1 {
		bestMatch := ""
		bestSimilarity := 0.0
		for _, line := range lines {
			sim := similarity(line, target)
			if sim > bestSimilarity {
				bestSimilarity = sim
				bestMatch = line
			}
		}
		return bestMatch, bestSimilarity
	}

	targetLen := len(targetLines)
	bestMatch := ""
	bestSimilarity := 0.0
	for i := 0; i <= len(lines)-targetLen; i++ {
		block := strings.Join(lines[i:i+targetLen], "\n")
		sim := similarity(block, target)
		if sim > bestSimilarity {
			bestSimilarity = sim
			bestMatch = block
		}
	}
	return bestMatch, bestSimilarity
}

// similarity calculates normalized Levenshtein similarity using the
// agnivade/levenshtein package.
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) > 10000 || len(b) > 10000 {
		maxLen := max(len(a), len(b))
		minLen := min(len(a), len(b))
		return float64(minLen) / float64(maxLen)
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := max(len(a), len(b))
	return 1.0 - float64(dist)/float64(maxLen)
}

func (t *EditTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
