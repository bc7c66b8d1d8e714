// Package editapply is C6: it turns a symbol actor's decision to edit a
// range of a file into a streamed sequence of start/delta/end calls against
// the EditorHost, runs an LSP-style correctness loop afterward, and
// optionally formats the result. When the correctness loop finds
// diagnostics after an edit, it asks an LLM to fix them and relocates the
// edit against the file's current contents before streaming the fix,
// rather than replaying the original text against a stale range.
//
// The matching strategy (exact first, line-ending-normalized second,
// Levenshtein-similarity fallback) and the diff text used in UI events are
// lifted directly from internal/tool/edit.go and internal/tool/diff.go;
// this package generalizes them from a one-shot file edit to a streamed,
// range-addressed edit against a remote editor surface, with a bounded
// retry loop instead of a single attempt.
package editapply

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/cenkalti/backoff/v4"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/coderunner-dev/agentcore/internal/editorhost"
	"github.com/coderunner-dev/agentcore/internal/formatter"
	"github.com/coderunner-dev/agentcore/internal/llmclient"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

// MaxCorrectnessRetries bounds the edit-then-check loop.
const MaxCorrectnessRetries = 5

// minSimilarity is the Levenshtein-similarity floor below which a fuzzy
// match is rejected rather than applied, matching the teacher's 0.7
// threshold in internal/tool/edit.go.
const minSimilarity = 0.7

// Strategy picks which part of a symbol's implementation an edit targets.
type Strategy int

const (
	StrategyFullSymbol Strategy = iota
	StrategyNarrow
	StrategyInsertion
)

// Request describes one edit to apply against a single file.
type Request struct {
	RequestID  string
	FsFilePath string
	Strategy   Strategy
	// Target is the range being replaced. For StrategyInsertion it is a
	// zero-width range at the insertion point.
	Target types.Range
	// OldText is the text expected at Target, used to locate the edit
	// precisely when the caller's range has drifted (fuzzy fallback).
	OldText string
	NewText string
}

// Outcome reports what happened after the correctness loop settled.
type Outcome struct {
	DiffText   string
	Formatted  bool
	Retries    int
	FinalRange types.Range
}

// Applier is the C6 contract used by the symbol actor.
type Applier interface {
	Apply(ctx context.Context, req Request) (*Outcome, error)
}

type applier struct {
	host  editorhost.Host
	fmt   *formatter.Manager
	asker llmclient.Asker
}

// New builds an Applier. fmtMgr may be nil to disable post-edit formatting.
// asker may be nil to disable the error-fix retry step, in which case the
// correctness loop only checks diagnostics once and stops.
func New(host editorhost.Host, fmtMgr *formatter.Manager, asker llmclient.Asker) Applier {
	return &applier{host: host, fmt: fmtMgr, asker: asker}
}

func (a *applier) Apply(ctx context.Context, req Request) (*Outcome, error) {
	file, err := a.host.OpenFile(ctx, req.FsFilePath)
	if err != nil {
		return nil, &types.SymbolError{Kind: types.SymbolErrIO, Message: err.Error()}
	}

	target, oldText, err := a.locate(file.Contents, req)
	if err != nil {
		return nil, err
	}

	diffText := buildDiff(req.FsFilePath, oldText, req.NewText)

	currentTarget := target
	currentNewText := req.NewText
	retries := 0
	var outcome *Outcome

	op := func() error {
		if err := a.stream(ctx, req.RequestID, req.FsFilePath, currentTarget, currentNewText); err != nil {
			return backoff.Permanent(err)
		}

		formatted := false
		if a.fmt != nil {
			if res, err := a.fmt.Format(ctx, req.FsFilePath); err == nil && res != nil && res.Changed {
				formatted = true
			}
		}

		diags, err := a.host.Diagnostics(ctx, req.FsFilePath)
		if err != nil {
			// Diagnostics are best-effort; a sidecar that doesn't support
			// them must not block the edit from completing.
			outcome = &Outcome{DiffText: diffText, Formatted: formatted, Retries: retries, FinalRange: currentTarget}
			return nil
		}
		issues := diags[req.FsFilePath]
		if len(issues) == 0 {
			outcome = &Outcome{DiffText: diffText, Formatted: formatted, Retries: retries, FinalRange: currentTarget}
			return nil
		}
		// Re-applying the same text against the same range can't resolve
		// anything; insertions also have no stable anchor to relocate
		// against once inserted, so stop after the first check.
		if retries >= MaxCorrectnessRetries || a.asker == nil || req.Strategy == StrategyInsertion {
			outcome = &Outcome{DiffText: diffText, Formatted: formatted, Retries: retries, FinalRange: currentTarget}
			return nil
		}

		fixed, ferr := a.fixErrors(ctx, req.FsFilePath, currentNewText, issues)
		if ferr != nil || strings.TrimSpace(fixed) == "" {
			outcome = &Outcome{DiffText: diffText, Formatted: formatted, Retries: retries, FinalRange: currentTarget}
			return nil
		}
		refreshed, oerr := a.host.OpenFile(ctx, req.FsFilePath)
		if oerr != nil {
			outcome = &Outcome{DiffText: diffText, Formatted: formatted, Retries: retries, FinalRange: currentTarget}
			return nil
		}
		relocated, _, lerr := a.locate(refreshed.Contents, Request{
			Strategy: req.Strategy, Target: currentTarget, OldText: currentNewText,
		})
		if lerr != nil {
			outcome = &Outcome{DiffText: diffText, Formatted: formatted, Retries: retries, FinalRange: currentTarget}
			return nil
		}

		currentTarget = relocated
		currentNewText = fixed
		retries++
		return fmt.Errorf("diagnostics remain after edit: %d issue(s), retrying with error-fix", len(issues))
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), MaxCorrectnessRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if outcome != nil {
			return outcome, nil
		}
		return nil, &types.SymbolError{Kind: types.SymbolErrToolError, Message: err.Error()}
	}
	return outcome, nil
}

// fixErrors asks the LLM to repair code that just produced diagnostics,
// matching the "error-fix" step of the correctness loop.
func (a *applier) fixErrors(ctx context.Context, path, code string, diags []editorhost.Diagnostic) (string, error) {
	answer, err := a.asker.Ask(ctx,
		"The given code was just written and produced diagnostics. Fix it. Reply with only the corrected code, no commentary, no fences.",
		fmt.Sprintf("File: %s\n\nDiagnostics:\n%s\nCode:\n%s", path, formatDiagnostics(diags), code))
	if err != nil {
		return "", err
	}
	answer = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(answer), "```\n"), "```")
	return answer, nil
}

func formatDiagnostics(diags []editorhost.Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&b, "%d:%d: [%s] %s\n", d.Range.Start.Line, d.Range.Start.Col, d.Severity, d.Message)
	}
	return b.String()
}

// locate resolves req.Target against the file's current contents, falling
// back to exact substring, line-ending-normalized, then fuzzy matching on
// req.OldText when the caller-supplied range no longer lines up (the file
// may have moved under concurrent edits).
func (a *applier) locate(contents string, req Request) (types.Range, string, error) {
	if req.Strategy == StrategyInsertion {
		return req.Target, "", nil
	}

	lines := strings.Split(contents, "\n")
	if req.Target.Start.Line >= 0 && req.Target.End.Line <= len(lines) {
		candidate := strings.Join(lines[req.Target.Start.Line:req.Target.End.Line], "\n")
		if candidate == req.OldText {
			return req.Target, candidate, nil
		}
		if normalizeLineEndings(candidate) == normalizeLineEndings(req.OldText) {
			return req.Target, candidate, nil
		}
	}

	match, similarity := findBestMatch(contents, req.OldText)
	if match == "" || similarity < minSimilarity {
		return types.Range{}, "", &types.SymbolError{
			Kind:    types.SymbolErrSnippetNotFound,
			Message: fmt.Sprintf("could not locate edit target in %s (best similarity %.2f)", req.FsFilePath, similarity),
		}
	}
	idx := strings.Index(contents, match)
	startLine := strings.Count(contents[:idx], "\n")
	endLine := startLine + strings.Count(match, "\n") + 1
	return types.Range{
		Start: types.Position{Line: startLine, Byte: idx},
		End:   types.Position{Line: endLine, Byte: idx + len(match)},
	}, match, nil
}

func (a *applier) stream(ctx context.Context, requestID, path string, target types.Range, newText string) error {
	if err := a.host.ApplyEditStream(ctx, editorhost.ApplyEditEvent{
		RequestID: requestID, Kind: editorhost.EditStart, Path: path, Range: target,
	}); err != nil {
		return err
	}
	const chunkSize = 4096
	for i := 0; i < len(newText); i += chunkSize {
		end := i + chunkSize
		if end > len(newText) {
			end = len(newText)
		}
		if err := a.host.ApplyEditStream(ctx, editorhost.ApplyEditEvent{
			RequestID: requestID, Kind: editorhost.EditDelta, Path: path, Delta: newText[i:end],
		}); err != nil {
			return err
		}
	}
	return a.host.ApplyEditStream(ctx, editorhost.ApplyEditEvent{
		RequestID: requestID, Kind: editorhost.EditEnd, Path: path,
	})
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// findBestMatch scans line-grouped windows of text for the closest match to
// target by normalized Levenshtein distance.
func findBestMatch(text, target string) (string, float64) {
	targetLines := strings.Split(target, "\n")
	lines := strings.Split(text, "\n")
	n := len(targetLines)
	if n == 0 || n > len(lines) {
		return "", 0
	}

	best, bestScore := "", 0.0
	for i := 0; i+n <= len(lines); i++ {
		candidate := strings.Join(lines[i:i+n], "\n")
		score := similarity(candidate, target)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best, bestScore
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func buildDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	patches := dmp.PatchMake(before, diffs)
	diffText := dmp.PatchToText(patches)
	if diffText == "" {
		return ""
	}
	var b2 strings.Builder
	b2.WriteString(fmt.Sprintf("--- %s\n+++ %s\n", path, path))
	b2.WriteString(diffText)
	return b2.String()
}
