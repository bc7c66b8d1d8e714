package plan

import (
	"context"
	"testing"

	"github.com/coderunner-dev/agentcore/internal/storage"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

type fakeAsker struct {
	reply string
	err   error
}

func (f *fakeAsker) Ask(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.reply, f.err
}

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	return storage.New(t.TempDir())
}

func TestCreatePlan_ParsesStepsAndPersists(t *testing.T) {
	store := newTestStore(t)
	asker := &fakeAsker{reply: "Read config | Load the config file | config.go\nWrite handler | Add the HTTP handler | handler.go\n"}

	sender := make(chan types.StepSenderEvent, 16)
	p, err := CreatePlan(context.Background(), store, nil, asker, "session-1", "plan-1", "add a handler", sender)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	close(sender)

	if len(p.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d: %+v", len(p.Steps), p.Steps)
	}
	if p.Steps[0].Title != "Read config" || p.Steps[0].Description != "Load the config file" {
		t.Errorf("unexpected step 0: %+v", p.Steps[0])
	}
	if p.Steps[0].FileToEdit == nil || *p.Steps[0].FileToEdit != "config.go" {
		t.Errorf("expected fileToEdit propagated, got %+v", p.Steps[0].FileToEdit)
	}
	if p.Steps[1].Index != 1 {
		t.Errorf("expected step 1 index 1, got %d", p.Steps[1].Index)
	}

	loaded, err := LoadPlanFromID(context.Background(), store, "session-1", "plan-1")
	if err != nil {
		t.Fatalf("LoadPlanFromID: %v", err)
	}
	if len(loaded.Steps) != 2 {
		t.Errorf("persisted plan has %d steps, want 2", len(loaded.Steps))
	}

	var kinds []types.StepSenderEventKind
	for {
		select {
		case ev, ok := <-sender:
			if !ok {
				goto done
			}
			kinds = append(kinds, ev.Kind)
		default:
			goto done
		}
	}
done:
	if len(kinds) == 0 {
		t.Fatal("expected step sender events")
	}
	if kinds[len(kinds)-1] != types.StepEventDone {
		t.Errorf("expected the last event to be StepEventDone, got %s", kinds[len(kinds)-1])
	}
}

func TestCreatePlan_NoFileToEdit(t *testing.T) {
	store := newTestStore(t)
	asker := &fakeAsker{reply: "Just think | No file needed\n"}

	p, err := CreatePlan(context.Background(), store, nil, asker, "session-2", "plan-2", "plan something", nil)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(p.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(p.Steps))
	}
	if p.Steps[0].FileToEdit != nil {
		t.Errorf("expected nil FileToEdit, got %v", *p.Steps[0].FileToEdit)
	}
}

func TestCreatePlan_AskerError(t *testing.T) {
	store := newTestStore(t)
	asker := &fakeAsker{err: context.DeadlineExceeded}

	_, err := CreatePlan(context.Background(), store, nil, asker, "session-3", "plan-3", "query", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	symErr, ok := err.(*types.SymbolError)
	if !ok {
		t.Fatalf("expected *types.SymbolError, got %T", err)
	}
	if symErr.Kind != types.SymbolErrToolError {
		t.Errorf("expected SymbolErrToolError, got %s", symErr.Kind)
	}
}

func TestLoadPlanFromID_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := LoadPlanFromID(context.Background(), store, "session-x", "missing-plan")
	if err != storage.ErrNotFound {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
}

func TestDropPlanSteps_TruncatesAndPersists(t *testing.T) {
	store := newTestStore(t)
	p := &types.Plan{PlanID: "plan-4", Steps: []types.PlanStep{
		{Index: 0, Title: "a"},
		{Index: 1, Title: "b"},
		{Index: 2, Title: "c"},
	}}
	if err := save(context.Background(), store, "session-4", p); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := DropPlanSteps(context.Background(), store, "session-4", p, 1); err != nil {
		t.Fatalf("DropPlanSteps: %v", err)
	}
	if len(p.Steps) != 1 {
		t.Fatalf("expected 1 step remaining, got %d", len(p.Steps))
	}

	loaded, err := LoadPlanFromID(context.Background(), store, "session-4", "plan-4")
	if err != nil {
		t.Fatalf("LoadPlanFromID: %v", err)
	}
	if len(loaded.Steps) != 1 || loaded.Steps[0].Title != "a" {
		t.Errorf("truncation not persisted: %+v", loaded.Steps)
	}
}

func TestSplitStepLine(t *testing.T) {
	title, desc, file := splitStepLine("Title | Description | file.go")
	if title != "Title" || desc != "Description" || file != "file.go" {
		t.Errorf("unexpected split: %q %q %q", title, desc, file)
	}

	title2, desc2, file2 := splitStepLine("Only title")
	if title2 != "Only title" || desc2 != "" || file2 != "" {
		t.Errorf("unexpected split for single-field line: %q %q %q", title2, desc2, file2)
	}
}

func TestSplitNonEmptyLines_SkipsBlank(t *testing.T) {
	lines := splitNonEmptyLines("a\n\n  \nb\n")
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("unexpected lines: %+v", lines)
	}
}
