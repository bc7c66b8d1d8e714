package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/coderunner-dev/agentcore/internal/editorhost"
	"github.com/coderunner-dev/agentcore/internal/event"
	"github.com/coderunner-dev/agentcore/internal/llmclient"
	"github.com/coderunner-dev/agentcore/internal/plan"
	"github.com/coderunner-dev/agentcore/internal/storage"
	"github.com/coderunner-dev/agentcore/internal/symbol"
	"github.com/coderunner-dev/agentcore/internal/tool"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

// HotStreakContextWindow bounds how many recent hot-streak messages are
// kept in a session's rolling context; older entries are evicted FIFO. This
// resolves the open question of unbounded hot-streak growth.
const HotStreakContextWindow = 20

// RevertOutcome reports the result of reverting a plan partway through
// execution: how many steps remain and which already-applied steps could
// not be undone. This resolves the open question of partial-revert
// propagation: failures are surfaced to the caller instead of swallowed.
type RevertOutcome struct {
	StepsRemaining int
	UndoFailures   []string
}

// ExchangeService layers the Exchange/Plan/Edit vocabulary on top of the
// chat-message Service, the Hub of symbol actors, and plan persistence. It
// owns exchange bookkeeping (state transitions, hot-streak trimming);
// actual inference and editing is delegated to llmclient/symbol/plan.
type ExchangeService struct {
	svc     *Service
	store   *storage.Storage
	hub     symbol.Hub
	asker   llmclient.Asker
	host    editorhost.Host
	toolReg *tool.Registry
}

func NewExchangeService(svc *Service, store *storage.Storage, hub symbol.Hub, asker llmclient.Asker, host editorhost.Host, toolReg *tool.Registry) *ExchangeService {
	return &ExchangeService{svc: svc, store: store, hub: hub, asker: asker, host: host, toolReg: toolReg}
}

func exchangeKey(sessionID, exchangeID string) []string {
	return []string{"exchange", sessionID, exchangeID}
}

func newExchangeID() string { return ulid.Make().String() }

func (es *ExchangeService) get(ctx context.Context, sessionID, exchangeID string) (*types.Exchange, error) {
	var ex types.Exchange
	if err := es.store.Get(ctx, exchangeKey(sessionID, exchangeID), &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

func (es *ExchangeService) put(ctx context.Context, sessionID string, ex *types.Exchange) error {
	if err := es.store.Put(ctx, exchangeKey(sessionID, ex.ExchangeID), ex); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.ExchangeUpdated, Data: map[string]any{
		"sessionID": sessionID, "exchangeID": ex.ExchangeID, "state": ex.State,
	}})
	return nil
}

// AcceptOpenExchangesIfAny closes out any exchange left Running by marking
// it Accepted, used before starting a new exchange in the same session so
// an abandoned stream never blocks the next turn.
func (es *ExchangeService) AcceptOpenExchangesIfAny(ctx context.Context, sessionID string, openExchangeIDs []string) error {
	for _, id := range openExchangeIDs {
		ex, err := es.get(ctx, sessionID, id)
		if err != nil {
			continue
		}
		if ex.State == types.ExchangeStateRunning {
			ex.State = types.ExchangeStateAccepted
			if err := es.put(ctx, sessionID, ex); err != nil {
				return err
			}
		}
	}
	return nil
}

// AppendHumanMessage starts a HumanChat exchange and streams the model's
// reply through llmclient, publishing UI events on the hub's stream as it
// goes.
func (es *ExchangeService) AppendHumanMessage(ctx context.Context, sessionID, message string) (*types.Exchange, error) {
	ex := &types.Exchange{
		ExchangeID: newExchangeID(),
		Type:       types.ExchangeType{Kind: types.ExchangeTypeHumanChat},
		State:      types.ExchangeStateRunning,
	}
	if err := es.put(ctx, sessionID, ex); err != nil {
		return nil, err
	}

	es.hub.PublishUI(types.UIEvent{Kind: types.UIInferenceStarted, SessionID: sessionID, ExchangeID: ex.ExchangeID})
	defer es.hub.PublishUI(types.UIEvent{Kind: types.UIFinishedExchange, SessionID: sessionID, ExchangeID: ex.ExchangeID})

	prompt := message
	if history, herr := renderHistory(ctx, es.store, sessionID); herr == nil && history != "" {
		prompt = "Conversation so far:\n" + history + "\n\nUser: " + message
	}
	reply, err := es.asker.Ask(ctx, "Respond to the user's message.", prompt)
	if err != nil {
		ex.State = types.ExchangeStateRejected
		_ = es.put(ctx, sessionID, ex)
		return ex, err
	}

	es.hub.PublishUI(types.UIEvent{Kind: types.UIChat, SessionID: sessionID, ExchangeID: ex.ExchangeID, Reply: reply})

	ex.Type.Reply = &types.AgentChatReply{Kind: types.AgentReplyChat, Chat: &types.ChatReply{Reply: reply}}
	ex.State = types.ExchangeStateAccepted
	if err := es.put(ctx, sessionID, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// AppendPlan creates a Plan exchange and streams step generation through
// internal/plan. Step-level deltas are translated into UIEvents on the hub
// (the session's SSE stream) as they arrive; sender, if non-nil, additionally
// receives the raw StepSenderEvents for a caller that wants them directly.
func (es *ExchangeService) AppendPlan(ctx context.Context, sessionID, query string, sender chan<- types.StepSenderEvent) (*types.Exchange, error) {
	ex := &types.Exchange{
		ExchangeID: newExchangeID(),
		Type:       types.ExchangeType{Kind: types.ExchangeTypePlan},
		State:      types.ExchangeStateRunning,
	}
	if err := es.put(ctx, sessionID, ex); err != nil {
		return nil, err
	}

	if es.hasPriorPlan(ctx, sessionID) {
		es.hub.PublishUI(types.UIEvent{Kind: types.UIPlanRegeneration, SessionID: sessionID, ExchangeID: ex.ExchangeID})
	}
	es.hub.PublishUI(types.UIEvent{Kind: types.UIStartPlanGeneration, SessionID: sessionID, ExchangeID: ex.ExchangeID})
	defer es.hub.PublishUI(types.UIEvent{Kind: types.UIFinishedExchange, SessionID: sessionID, ExchangeID: ex.ExchangeID})

	internal := make(chan types.StepSenderEvent, 256)
	p, err := plan.CreatePlan(ctx, es.store, es.host, es.asker, sessionID, ex.ExchangeID, query, internal)
	close(internal)
	for stepEvent := range internal {
		if sender != nil {
			select {
			case sender <- stepEvent:
			default:
			}
		}
		if uiEvent, ok := translatePlanStepEvent(sessionID, ex.ExchangeID, stepEvent); ok {
			es.hub.PublishUI(uiEvent)
		}
	}
	if err != nil {
		ex.State = types.ExchangeStateRejected
		_ = es.put(ctx, sessionID, ex)
		return ex, err
	}

	es.hub.PublishUI(types.UIEvent{Kind: types.UIRequestReview, SessionID: sessionID, ExchangeID: ex.ExchangeID})
	es.hub.PublishUI(types.UIEvent{Kind: types.UIPlanAsFinished, SessionID: sessionID, ExchangeID: ex.ExchangeID})

	ex.Type.Reply = &types.AgentChatReply{Kind: types.AgentReplyPlan, Plan: &types.PlanReply{Steps: p.Steps}}
	ex.State = types.ExchangeStateAccepted
	if err := es.put(ctx, sessionID, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// hasPriorPlan reports whether sessionID already has an accepted or
// rejected Plan exchange, so a new plan request is a regeneration rather
// than the session's first.
func (es *ExchangeService) hasPriorPlan(ctx context.Context, sessionID string) bool {
	found := false
	_ = es.store.Scan(ctx, []string{"exchange", sessionID}, func(key string, data json.RawMessage) error {
		var ex types.Exchange
		if err := json.Unmarshal(data, &ex); err != nil {
			return nil
		}
		if ex.Type.Kind == types.ExchangeTypePlan && ex.State.IsTerminal() {
			found = true
		}
		return nil
	})
	return found
}

// translatePlanStepEvent maps a plan-generation StepSenderEvent onto the
// corresponding UIEvent, or reports ok=false for kinds with no UI
// representation (developer_message, done — the latter is superseded by the
// exchange's own finished_exchange event).
func translatePlanStepEvent(sessionID, exchangeID string, ev types.StepSenderEvent) (types.UIEvent, bool) {
	base := types.UIEvent{SessionID: sessionID, ExchangeID: exchangeID, StepIndex: ev.StepIndex}
	switch ev.Kind {
	case types.StepEventNewStepTitle:
		base.Kind = types.UIPlanTitleAdded
		base.Title = ev.TitleDelta
	case types.StepEventNewStepDescription:
		base.Kind = types.UIPlanDescriptionUpdated
		base.Description = ev.DescriptionDelta
	case types.StepEventNewStep:
		base.Kind = types.UIPlanCompleteAdded
		if ev.Step != nil {
			base.Title = ev.Step.Title
			base.Description = ev.Step.Description
		}
	default:
		return types.UIEvent{}, false
	}
	return base, true
}

// AppendEdit starts an agentic Edit exchange: it dispatches an
// initial_request event to the target symbol and waits for completion.
func (es *ExchangeService) AppendEdit(ctx context.Context, sessionID string, target types.SymbolIdentifier, query string, fullSymbol, bigSearch bool) (*types.Exchange, error) {
	return es.appendEdit(ctx, sessionID, types.EditExchangeAgentic, target, query, fullSymbol, bigSearch, nil)
}

// AppendAnchoredEdit starts an Edit exchange scoped to a caller-supplied
// range rather than the whole symbol.
func (es *ExchangeService) AppendAnchoredEdit(ctx context.Context, sessionID string, target types.SymbolIdentifier, query string, anchor *types.Range) (*types.Exchange, error) {
	return es.appendEdit(ctx, sessionID, types.EditExchangeAnchored, target, query, false, false, anchor)
}

func (es *ExchangeService) appendEdit(ctx context.Context, sessionID string, kind types.EditExchangeKind, target types.SymbolIdentifier, query string, fullSymbol, bigSearch bool, anchor *types.Range) (*types.Exchange, error) {
	ex := &types.Exchange{
		ExchangeID: newExchangeID(),
		Type:       types.ExchangeType{Kind: types.ExchangeTypeEdit, EditKind: kind},
		State:      types.ExchangeStateRunning,
	}
	if err := es.put(ctx, sessionID, ex); err != nil {
		return nil, err
	}

	effectiveQuery := query
	if history, herr := renderHistory(ctx, es.store, sessionID); herr == nil && history != "" {
		effectiveQuery = "Conversation so far:\n" + history + "\n\nRequest: " + effectiveQuery
	}
	if anchor == nil && es.toolReg != nil {
		if extra := gatherToolContext(ctx, es.asker, es.toolReg, es.hub, sessionID, ex.ExchangeID, es.toolReg.WorkDir(), query); extra != "" {
			effectiveQuery = effectiveQuery + "\n\nRelevant context:\n" + extra
		}
	}

	ev := types.SymbolEvent{Kind: types.SymbolEventInitialRequest, InitialRequest: &types.InitialRequestEvent{
		Query: effectiveQuery, FullSymbol: fullSymbol, BigSearch: bigSearch,
	}}
	if anchor != nil {
		ev.Kind = types.SymbolEventEdit
		ev.InitialRequest = nil
		ev.Edit = &types.EditEvent{SubSymbols: []types.SubSymbol{{
			Name: target.Name, FsFilePath: derefOrEmpty(target.FsFilePath), Range: *anchor,
		}}}
		es.hub.PublishUI(types.UIEvent{
			Kind: types.UIRangeSelectionForEdit, SessionID: sessionID, ExchangeID: ex.ExchangeID,
			Path: derefOrEmpty(target.FsFilePath), Range: anchor,
		})
	}

	reply := es.hub.Dispatch(ctx, sessionID, ex.ExchangeID, target, ev, nil)
	resp := <-reply

	if resp.Kind == types.SymbolResponseError {
		ex.State = types.ExchangeStateRejected
		_ = es.put(ctx, sessionID, ex)
		return ex, resp.Err
	}

	ex.Type.Reply = &types.AgentChatReply{Kind: types.AgentReplyEdit, Edit: &types.EditReply{Accepted: false}}
	ex.State = types.ExchangeStateRunning
	if err := es.put(ctx, sessionID, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ReactToFeedback records a user's accept/reject decision on an open
// exchange and forwards it to the owning symbol so future probes/edits see
// the outcome. stepIndex addresses a single step of a Plan exchange; it is
// ignored for every other exchange kind. For a Plan: accepting at stepIndex
// keeps steps [0, stepIndex] and drops the rest (the remaining steps were
// never reached); rejecting at stepIndex 0 discards the whole plan;
// rejecting at a later stepIndex keeps steps [0, stepIndex) and drops the
// rejected step onward.
func (es *ExchangeService) ReactToFeedback(ctx context.Context, sessionID, exchangeID string, target types.SymbolIdentifier, feedback string, accepted bool, stepIndex *int) (*types.Exchange, error) {
	ex, err := es.get(ctx, sessionID, exchangeID)
	if err != nil {
		return nil, err
	}
	if !ex.IsOpen() {
		return nil, fmt.Errorf("exchange %s is not open", exchangeID)
	}

	defer es.hub.PublishUI(types.UIEvent{Kind: types.UIFinishedExchange, SessionID: sessionID, ExchangeID: exchangeID})

	if ex.Type.Kind == types.ExchangeTypePlan && stepIndex != nil {
		if err := es.reactToPlanFeedback(ctx, sessionID, ex, *stepIndex, accepted); err != nil {
			return nil, err
		}
		return ex, es.put(ctx, sessionID, ex)
	}

	reply := es.hub.Dispatch(ctx, sessionID, exchangeID, target, types.SymbolEvent{
		Kind:         types.SymbolEventUserFeedback,
		UserFeedback: &types.UserFeedbackEvent{Feedback: feedback, Accepted: accepted},
	}, nil)
	<-reply

	if ex.Type.Reply != nil && ex.Type.Reply.Kind == types.AgentReplyEdit && ex.Type.Reply.Edit != nil {
		ex.Type.Reply.Edit.Accepted = accepted
	}
	if accepted {
		ex.State = types.ExchangeStateAccepted
		es.hub.PublishUI(types.UIEvent{Kind: types.UIEditsAccepted, SessionID: sessionID, ExchangeID: exchangeID})
	} else {
		ex.State = types.ExchangeStateRejected
		es.hub.PublishUI(types.UIEvent{Kind: types.UIEditsCancelledInExchange, SessionID: sessionID, ExchangeID: exchangeID})
	}
	if err := es.put(ctx, sessionID, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// reactToPlanFeedback applies a per-step accept/reject decision to a Plan
// exchange's reply and persisted plan, mutating ex in place.
func (es *ExchangeService) reactToPlanFeedback(ctx context.Context, sessionID string, ex *types.Exchange, stepIndex int, accepted bool) error {
	if ex.Type.Reply == nil || ex.Type.Reply.Plan == nil {
		return fmt.Errorf("exchange %s has no plan reply", ex.ExchangeID)
	}

	p, err := plan.LoadPlanFromID(ctx, es.store, sessionID, ex.ExchangeID)
	if err != nil {
		return err
	}

	if accepted {
		keep := stepIndex + 1
		if err := plan.DropPlanSteps(ctx, es.store, sessionID, p, keep); err != nil {
			return err
		}
		ex.Type.Reply.Plan.Steps = p.Steps
		ex.State = types.ExchangeStateAccepted
		es.hub.PublishUI(types.UIEvent{Kind: types.UIPlanAsAccepted, SessionID: sessionID, ExchangeID: ex.ExchangeID, StepIndex: stepIndex})
		return nil
	}

	if stepIndex == 0 {
		if err := plan.DropPlanSteps(ctx, es.store, sessionID, p, 0); err != nil {
			return err
		}
		ex.Type.Reply.Plan.Steps = p.Steps
		ex.Type.Reply.Plan.Discarded = true
		ex.State = types.ExchangeStateRejected
		es.hub.PublishUI(types.UIEvent{Kind: types.UIPlanAsCancelled, SessionID: sessionID, ExchangeID: ex.ExchangeID, StepIndex: stepIndex})
		return nil
	}

	if err := plan.DropPlanSteps(ctx, es.store, sessionID, p, stepIndex); err != nil {
		return err
	}
	ex.Type.Reply.Plan.Steps = p.Steps
	ex.State = types.ExchangeStateAccepted
	es.hub.PublishUI(types.UIEvent{Kind: types.UIPlanAsCancelled, SessionID: sessionID, ExchangeID: ex.ExchangeID, StepIndex: stepIndex})
	return nil
}

// PerformPlanRevert truncates a plan to k steps and reports what could not
// be undone so far. Undo of already-applied file edits is best-effort: a
// step with no recorded file target is trivially "undone".
func (es *ExchangeService) PerformPlanRevert(ctx context.Context, sessionID, planID string, k int) (*RevertOutcome, error) {
	p, err := plan.LoadPlanFromID(ctx, es.store, sessionID, planID)
	if err != nil {
		return nil, err
	}

	var failures []string
	for i := k; i < len(p.Steps); i++ {
		step := p.Steps[i]
		if step.FileToEdit == nil {
			continue
		}
		if _, err := es.host.OpenFile(ctx, *step.FileToEdit); err != nil {
			failures = append(failures, step.Title)
		}
	}

	if err := plan.DropPlanSteps(ctx, es.store, sessionID, p, k); err != nil {
		return nil, err
	}
	return &RevertOutcome{StepsRemaining: len(p.Steps), UndoFailures: failures}, nil
}

// UndoUntilExchange walks a session's exchanges back to (and including)
// the given one, marking each Cancelled, stopping at the first exchange
// that is not open.
func (es *ExchangeService) UndoUntilExchange(ctx context.Context, sessionID string, exchangeIDs []string, stopAtExchangeID string) error {
	for i := len(exchangeIDs) - 1; i >= 0; i-- {
		id := exchangeIDs[i]
		ex, err := es.get(ctx, sessionID, id)
		if err != nil {
			continue
		}
		if !ex.IsOpen() {
			break
		}
		ex.State = types.ExchangeStateCancelled
		if err := es.put(ctx, sessionID, ex); err != nil {
			return err
		}
		if id == stopAtExchangeID {
			break
		}
	}
	return nil
}

// SetExchangeAsCancelled force-cancels a single exchange regardless of
// state, used when a client disconnects mid-stream.
func (es *ExchangeService) SetExchangeAsCancelled(ctx context.Context, sessionID, exchangeID string) error {
	ex, err := es.get(ctx, sessionID, exchangeID)
	if err != nil {
		return err
	}
	ex.State = types.ExchangeStateCancelled
	return es.put(ctx, sessionID, ex)
}

// HotStreakMessage appends a message to a session's bounded hot-streak
// context window, evicting the oldest entry once the window is full
// (resolves the open question of unbounded hot-streak growth). Before
// appending, it grabs current workspace diagnostics and publishes them as
// UISendVariables, the same per-file diagnostic text the original hot
// streak path folds into the agent's running context.
func (es *ExchangeService) HotStreakMessage(ctx context.Context, sessionID, message string) ([]string, error) {
	if es.host != nil && es.toolReg != nil {
		if vars := es.grabDiagnosticVariables(ctx); len(vars) > 0 {
			es.hub.PublishUI(types.UIEvent{Kind: types.UIChat, SessionID: sessionID, Message: "Looking at Language Server errors ..."})
			es.hub.PublishUI(types.UIEvent{Kind: types.UISendVariables, SessionID: sessionID, Variables: vars})
		}
	}

	key := []string{"hotstreak", sessionID}
	var window []string
	if err := es.store.Get(ctx, key, &window); err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	window = append(window, message)
	if len(window) > HotStreakContextWindow {
		window = window[len(window)-HotStreakContextWindow:]
	}
	if err := es.store.Put(ctx, key, window); err != nil {
		return nil, err
	}
	return window, nil
}

// grabDiagnosticVariables fetches workspace diagnostics and formats each
// file's errors into a variable entry keyed by path, mirroring the
// original's "extra_variables" derived from diagnostics before a hot
// streak turn.
func (es *ExchangeService) grabDiagnosticVariables(ctx context.Context) map[string]string {
	diags, err := es.host.Diagnostics(ctx, es.toolReg.WorkDir())
	if err != nil || len(diags) == 0 {
		return nil
	}
	vars := make(map[string]string, len(diags))
	for path, ds := range diags {
		var sb strings.Builder
		for _, d := range ds {
			fmt.Fprintf(&sb, "%d:%d: %s\n", d.Range.Start.Line, d.Range.Start.Col, d.Message)
		}
		vars[path] = sb.String()
	}
	return vars
}
