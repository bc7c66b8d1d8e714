// Package codeparser is the C2 adapter: given (language_id, buffer) it
// returns outline nodes, the sub-symbols within an outline, and the
// smallest symbol containing a range. It is pure and deterministic.
//
// Tree-sitter chunking and real symbol parsing are explicitly out of scope
// (spec Non-goals: "recomputing AST structure (delegated)") and no example
// in the retrieval pack carries a tree-sitter binding, so this adapter uses
// a line-oriented heuristic over common declaration keywords, the same
// class of approach the teacher's internal/tool/grep.go already takes for
// locating text ranges without a real parser. A production EditorHost
// would instead proxy this call to the editor's own language server (see
// internal/lsp/operations.go's DocumentSymbol, which this package's
// interface intentionally mirrors so swapping in a real LSP-backed
// implementation is a drop-in replacement).
package codeparser

import (
	"regexp"
	"strings"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

// Parser is the C2 contract.
type Parser interface {
	OutlineNodes(languageID, fsFilePath, buffer string) []types.OutlineNode
	SubSymbols(outline types.OutlineNode, buffer string) []types.SubSymbol
	SmallestEnclosing(nodes []types.OutlineNode, r types.Range) *types.OutlineNode
}

type heuristicParser struct {
	declPatterns map[string]*regexp.Regexp
}

func New() Parser {
	return &heuristicParser{
		declPatterns: map[string]*regexp.Regexp{
			"go":         regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?(\w+)`),
			"typescript": regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)|^\s*(?:export\s+)?class\s+(\w+)`),
			"javascript": regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)|^\s*(?:export\s+)?class\s+(\w+)`),
			"python":     regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)|^\s*class\s+(\w+)`),
			"rust":       regexp.MustCompile(`^\s*(?:pub\s+)?(?:async\s+)?fn\s+(\w+)|^\s*(?:pub\s+)?struct\s+(\w+)|^\s*(?:pub\s+)?enum\s+(\w+)`),
		},
	}
}

func (p *heuristicParser) pattern(languageID string) *regexp.Regexp {
	if re, ok := p.declPatterns[strings.ToLower(languageID)]; ok {
		return re
	}
	return p.declPatterns["go"]
}

// OutlineNodes walks the buffer line by line, ordered by byte offset as the
// EditorHost contract requires, opening a node at each matched declaration
// and closing it at the next declaration (or end of buffer) at the same or
// shallower indentation.
func (p *heuristicParser) OutlineNodes(languageID, fsFilePath, buffer string) []types.OutlineNode {
	re := p.pattern(languageID)
	lines := strings.Split(buffer, "\n")

	type open struct {
		name   string
		indent int
		startL int
		startB int
	}
	var stack []open
	var nodes []types.OutlineNode
	byteOffset := 0

	closeTo := func(indent int, endLine int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			o := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			content := strings.Join(lines[o.startL:endLine], "\n")
			nodes = append(nodes, types.OutlineNode{
				Name:       o.name,
				FsFilePath: fsFilePath,
				Range: types.Range{
					Start: types.Position{Line: o.startL, Col: 0, Byte: o.startB},
					End:   types.Position{Line: endLine, Col: 0, Byte: byteOffset},
				},
				Content: content,
			})
		}
	}

	for i, line := range lines {
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if m := re.FindStringSubmatch(line); m != nil {
			name := firstNonEmpty(m[1:])
			if name != "" {
				closeTo(indent, i)
				stack = append(stack, open{name: name, indent: indent, startL: i, startB: byteOffset})
			}
		}
		byteOffset += len(line) + 1
	}
	closeTo(-1, len(lines))

	sortByByteOffset(nodes)
	return nodes
}

func firstNonEmpty(ss []string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func sortByByteOffset(nodes []types.OutlineNode) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j-1].Range.Start.Byte > nodes[j].Range.Start.Byte; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

// SubSymbols re-parses an outline node's own content as a nested buffer,
// yielding addressable ranges within its implementation block, offset back
// into the parent's coordinate space.
func (p *heuristicParser) SubSymbols(outline types.OutlineNode, buffer string) []types.SubSymbol {
	nested := p.OutlineNodes("go", outline.FsFilePath, outline.Content)
	subs := make([]types.SubSymbol, 0, len(nested))
	for _, n := range nested {
		n.Range.Start.Line += outline.Range.Start.Line
		n.Range.End.Line += outline.Range.Start.Line
		n.Range.Start.Byte += outline.Range.Start.Byte
		n.Range.End.Byte += outline.Range.Start.Byte
		subs = append(subs, n)
	}
	return subs
}

// SmallestEnclosing returns the outline node with the smallest byte span
// that contains r's start position, or nil if none does.
func (p *heuristicParser) SmallestEnclosing(nodes []types.OutlineNode, r types.Range) *types.OutlineNode {
	var best *types.OutlineNode
	bestSpan := -1
	for i := range nodes {
		if !nodes[i].Range.Contains(r.Start) {
			continue
		}
		span := nodes[i].Range.End.Byte - nodes[i].Range.Start.Byte
		if best == nil || span < bestSpan {
			best = &nodes[i]
			bestSpan = span
		}
	}
	return best
}
