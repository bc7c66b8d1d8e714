package symbol

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

// Symbol is a long-lived actor representing one code entity. Created on
// first request targeting its identifier, it runs until the hub (and thus
// its mailbox) is torn down. Internal caches live for the actor's lifetime.
type Symbol struct {
	id  types.SymbolIdentifier
	hub *hub

	mailbox chan *types.SymbolEventRequest
	sem     chan struct{} // bounds concurrent mailbox handling at fanoutLimit

	probeMu              sync.Mutex
	probeQuestionsAnswer map[string]*string // original_request_id -> resolved answer (nil = resolved-to-failure)
	probeQuestionsAsked  []string
	sf                   singleflight.Group

	implMu        sync.RWMutex
	implementations []types.OutlineNode

	queryMu  sync.Mutex
	lastQuery string
}

func newSymbol(id types.SymbolIdentifier, h *hub) *Symbol {
	return &Symbol{
		id:                   id,
		hub:                  h,
		mailbox:              make(chan *types.SymbolEventRequest, mailboxCapacity),
		sem:                  make(chan struct{}, fanoutLimit),
		probeQuestionsAnswer: make(map[string]*string),
	}
}

// requestContextKey namespaces the two values handle() stashes on the
// context it builds for a mailbox request, so every call it makes down the
// edit/probe chain can stamp outgoing UIEvents with the right session and
// exchange without threading two extra parameters through every function.
type requestContextKey int

const (
	ctxKeySessionID requestContextKey = iota
	ctxKeyExchangeID
)

func withRequestIDs(ctx context.Context, sessionID, exchangeID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeySessionID, sessionID)
	return context.WithValue(ctx, ctxKeyExchangeID, exchangeID)
}

func sessionIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeySessionID).(string)
	return v
}

func exchangeIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyExchangeID).(string)
	return v
}

// publish stamps e with the session/exchange this actor is currently
// servicing (per the calling goroutine's context) before forwarding it to
// the hub's UI stream.
func (s *Symbol) publish(ctx context.Context, e types.UIEvent) {
	e.SessionID = sessionIDFrom(ctx)
	e.ExchangeID = exchangeIDFrom(ctx)
	s.hub.publish(e)
}

// run is the actor's receive loop. Each event is acknowledged via a UIEvent
// then dispatched by kind with bounded concurrency; the result is always
// delivered on the request's oneshot, even on error or panic recovery,
// because the mailbox protocol promises "never leaks".
func (s *Symbol) run() {
	for req := range s.mailbox {
		req := req
		s.sem <- struct{}{}
		go func() {
			defer func() { <-s.sem }()
			defer func() {
				if r := recover(); r != nil {
					req.ReplyCh <- types.SymbolEventResponse{
						Kind: types.SymbolResponseError,
						Err:  &types.SymbolError{Kind: types.SymbolErrToolError, Message: fmt.Sprintf("recovered: %v", r)},
					}
				}
			}()
			s.handle(req)
		}()
	}
}

func (s *Symbol) handle(req *types.SymbolEventRequest) {
	ctx := withRequestIDs(context.Background(), req.SessionID, req.ExchangeID)

	s.publish(ctx, types.UIEvent{Kind: types.UISubSymbolStep, Message: string(req.Event.Kind)})
	if req.ExchangeID != "" {
		defer s.publish(ctx, types.UIEvent{Kind: types.UIFinishedExchange})
	}

	switch req.Event.Kind {
	case types.SymbolEventProbe:
		answer, err := s.probe(ctx, req.Event.Probe)
		if err != nil {
			req.ReplyCh <- errorResponse(err)
			return
		}
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseProbeAnswer, Message: answer}

	case types.SymbolEventOutline:
		nodes := s.refreshOutline(ctx)
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseOutline, Outline: nodes}

	case types.SymbolEventEdit:
		if err := s.editImplementations(ctx, req.Event.Edit.SubSymbols); err != nil {
			req.ReplyCh <- errorResponse(err)
			return
		}
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseTaskDone, Message: "edit complete"}

	case types.SymbolEventInitialRequest:
		if err := s.generateInitialRequest(ctx, req.Event.InitialRequest); err != nil {
			req.ReplyCh <- errorResponse(err)
			return
		}
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseTaskDone, Message: "initial request complete"}

	case types.SymbolEventAskQuestion:
		answer, err := s.hub.asker.Ask(ctx,
			"Answer the question about this code symbol using only the implementation shown.",
			s.renderImplementations()+"\n\nQuestion: "+req.Event.AskQuestion.Question)
		if err != nil {
			req.ReplyCh <- errorResponse(err)
			return
		}
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseProbeAnswer, Message: answer}

	case types.SymbolEventUserFeedback:
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseTaskDone, Message: "feedback noted"}

	case types.SymbolEventDelete:
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseTaskDone, Message: "deleted"}

	default:
		req.ReplyCh <- types.SymbolEventResponse{Kind: types.SymbolResponseTaskDone, Message: "unhandled event kind"}
	}
}

func errorResponse(err error) types.SymbolEventResponse {
	if se, ok := err.(*types.SymbolError); ok {
		return types.SymbolEventResponse{Kind: types.SymbolResponseError, Err: se}
	}
	return types.SymbolEventResponse{Kind: types.SymbolResponseError, Err: &types.SymbolError{Kind: types.SymbolErrIO, Message: err.Error()}}
}

// refreshOutline re-parses the symbol's implementations via CodeParser and
// EditorHost and caches the result for the duration of this call chain.
func (s *Symbol) refreshOutline(ctx context.Context) []types.OutlineNode {
	if s.id.FsFilePath == nil {
		return nil
	}
	file, err := s.hub.host.OpenFile(ctx, *s.id.FsFilePath)
	if err != nil {
		s.implMu.RLock()
		defer s.implMu.RUnlock()
		return s.implementations
	}
	nodes := s.hub.parser.OutlineNodes(file.LanguageID, *s.id.FsFilePath, file.Contents)

	var mine []types.OutlineNode
	for _, n := range nodes {
		if n.Name == s.id.Name {
			mine = append(mine, n)
		}
	}
	s.implMu.Lock()
	s.implementations = mine
	s.implMu.Unlock()
	return mine
}

func (s *Symbol) renderImplementations() string {
	s.implMu.RLock()
	defer s.implMu.RUnlock()
	out := ""
	for _, n := range s.implementations {
		out += n.Content + "\n"
	}
	return out
}
