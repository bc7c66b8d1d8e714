// Package plan is C9: creation, persistence and incremental mutation of a
// session's Plan. Grounded on internal/session/todo.go's
// get/update-then-publish shape, generalized from a flat todo list to
// ordered PlanSteps with a streamed generation event per step.
package plan

import (
	"context"
	"strings"

	"github.com/coderunner-dev/agentcore/internal/editorhost"
	"github.com/coderunner-dev/agentcore/internal/event"
	"github.com/coderunner-dev/agentcore/internal/llmclient"
	"github.com/coderunner-dev/agentcore/internal/storage"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

func storeKey(sessionID, planID string) []string {
	return []string{"plan", sessionID, planID}
}

// LoadPlanFromID retrieves a previously persisted plan, or storage.ErrNotFound.
func LoadPlanFromID(ctx context.Context, store *storage.Storage, sessionID, planID string) (*types.Plan, error) {
	var p types.Plan
	if err := store.Get(ctx, storeKey(sessionID, planID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func save(ctx context.Context, store *storage.Storage, sessionID string, p *types.Plan) error {
	if err := store.Put(ctx, storeKey(sessionID, p.PlanID), p); err != nil {
		return err
	}
	event.Publish(event.Event{
		Type: event.TodoUpdated,
		Data: map[string]any{
			"sessionID": sessionID,
			"planID":    p.PlanID,
			"steps":     p.Steps,
		},
	})
	return nil
}

// CreatePlan asks the LLM to decompose a query into ordered steps, streaming
// a StepSenderEvent per title/description delta and per completed step so
// the caller can forward UI events as generation progresses.
func CreatePlan(ctx context.Context, store *storage.Storage, host editorhost.Host, asker llmclient.Asker, sessionID, planID, query string, sender chan<- types.StepSenderEvent) (*types.Plan, error) {
	raw, err := asker.Ask(ctx,
		"Break the request into a short ordered list of concrete implementation steps. "+
			"Reply with one step per line, formatted as: title | description | file_to_edit (file_to_edit may be empty).",
		query)
	if err != nil {
		return nil, &types.SymbolError{Kind: types.SymbolErrToolError, Message: err.Error()}
	}

	p := &types.Plan{PlanID: planID}
	for i, line := range splitNonEmptyLines(raw) {
		title, description, fileToEdit := splitStepLine(line)
		step := types.PlanStep{Index: i, Title: title, Description: description}
		if fileToEdit != "" {
			step.FileToEdit = &fileToEdit
		}
		p.Steps = append(p.Steps, step)

		if sender != nil {
			send(sender, types.StepSenderEvent{Kind: types.StepEventNewStepTitle, StepIndex: i, TitleDelta: title})
			send(sender, types.StepSenderEvent{Kind: types.StepEventNewStepDescription, StepIndex: i, DescriptionDelta: description})
			stepCopy := step
			send(sender, types.StepSenderEvent{Kind: types.StepEventNewStep, StepIndex: i, Step: &stepCopy})
		}
	}

	if err := save(ctx, store, sessionID, p); err != nil {
		return nil, err
	}
	if sender != nil {
		send(sender, types.StepSenderEvent{Kind: types.StepEventDone})
	}
	return p, nil
}

// DropPlanSteps truncates a persisted plan to its first k steps, used when a
// plan is reverted or regenerated from a point.
func DropPlanSteps(ctx context.Context, store *storage.Storage, sessionID string, p *types.Plan, k int) error {
	p.DropPlanSteps(k)
	return save(ctx, store, sessionID, p)
}

func send(sender chan<- types.StepSenderEvent, e types.StepSenderEvent) {
	select {
	case sender <- e:
	default:
	}
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitStepLine(line string) (title, description, fileToEdit string) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) > 0 {
		title = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		description = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		fileToEdit = strings.TrimSpace(parts[2])
	}
	return
}
