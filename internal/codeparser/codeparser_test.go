package codeparser

import (
	"strings"
	"testing"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

const goSample = `package sample

func Alpha() int {
	return 1
}

func Beta() int {
	return 2
}
`

func TestOutlineNodes_Go(t *testing.T) {
	p := New()
	nodes := p.OutlineNodes("go", "sample.go", goSample)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d: %+v", len(nodes), nodes)
	}
	if nodes[0].Name != "Alpha" || nodes[1].Name != "Beta" {
		t.Errorf("unexpected node names: %s, %s", nodes[0].Name, nodes[1].Name)
	}
	if !strings.Contains(nodes[0].Content, "return 1") {
		t.Errorf("Alpha content missing body: %q", nodes[0].Content)
	}
	if nodes[0].FsFilePath != "sample.go" {
		t.Errorf("fsFilePath not propagated: %q", nodes[0].FsFilePath)
	}
}

func TestOutlineNodes_OrderedByByteOffset(t *testing.T) {
	p := New()
	nodes := p.OutlineNodes("go", "sample.go", goSample)
	for i := 1; i < len(nodes); i++ {
		if nodes[i-1].Range.Start.Byte > nodes[i].Range.Start.Byte {
			t.Fatalf("nodes not ordered by byte offset: %+v", nodes)
		}
	}
}

func TestOutlineNodes_UnknownLanguageFallsBackToGo(t *testing.T) {
	p := New()
	nodes := p.OutlineNodes("cobol", "sample.unknown", goSample)
	if len(nodes) != 2 {
		t.Fatalf("expected fallback to go patterns to find 2 nodes, got %d", len(nodes))
	}
}

func TestOutlineNodes_Python(t *testing.T) {
	p := New()
	src := "class Widget:\n    def render(self):\n        pass\n\ndef standalone():\n    pass\n"
	nodes := p.OutlineNodes("python", "sample.py", src)
	var names []string
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 nodes (class, method, function), got %v", names)
	}
}

func TestOutlineNodes_NoMatches(t *testing.T) {
	p := New()
	nodes := p.OutlineNodes("go", "empty.go", "package sample\n\nvar x = 1\n")
	if len(nodes) != 0 {
		t.Fatalf("expected no nodes, got %+v", nodes)
	}
}

func TestSubSymbols_OffsetsIntoParentCoordinates(t *testing.T) {
	p := New()
	nodes := p.OutlineNodes("go", "sample.go", goSample)
	outer := types.OutlineNode{
		Name:       "wrapper",
		FsFilePath: "sample.go",
		Range:      types.Range{Start: types.Position{Line: 10, Byte: 100}, End: types.Position{Line: 20, Byte: 200}},
		Content:    nodes[0].Content,
	}
	subs := p.SubSymbols(outer, goSample)
	if len(subs) != 1 {
		t.Fatalf("expected 1 nested sub-symbol, got %d", len(subs))
	}
	if subs[0].Range.Start.Line < 10 {
		t.Errorf("sub-symbol range not offset into parent: %+v", subs[0].Range)
	}
	if subs[0].Range.Start.Byte < 100 {
		t.Errorf("sub-symbol byte offset not shifted into parent: %+v", subs[0].Range)
	}
}

func TestSmallestEnclosing(t *testing.T) {
	p := New()
	nodes := p.OutlineNodes("go", "sample.go", goSample)

	inner := nodes[0].Range.Start
	inner.Line++ // a position inside Alpha's body

	got := p.SmallestEnclosing(nodes, types.Range{Start: inner, End: inner})
	if got == nil {
		t.Fatal("expected an enclosing node")
	}
	if got.Name != "Alpha" {
		t.Errorf("expected Alpha to enclose position, got %s", got.Name)
	}
}

func TestSmallestEnclosing_NoMatch(t *testing.T) {
	p := New()
	nodes := p.OutlineNodes("go", "sample.go", goSample)
	outside := types.Position{Line: 1000, Byte: 100000}
	if got := p.SmallestEnclosing(nodes, types.Range{Start: outside, End: outside}); got != nil {
		t.Errorf("expected nil for out-of-range position, got %+v", got)
	}
}

func TestOutlineNodes_Rust(t *testing.T) {
	p := New()
	src := "pub struct Foo {\n}\n\npub fn bar() {\n}\n"
	nodes := p.OutlineNodes("rust", "lib.rs", src)
	if len(nodes) != 2 {
		t.Fatalf("expected struct + fn, got %+v", nodes)
	}
	if nodes[0].Name != "Foo" || nodes[1].Name != "bar" {
		t.Errorf("unexpected names: %s, %s", nodes[0].Name, nodes[1].Name)
	}
}
