// Package symbol implements C7: a set of long-lived, concurrently-executing
// symbol actors and the central Hub that routes events between them.
//
// Grounded on internal/event/bus.go's subscriber-registry dispatch shape
// (the Hub's directory is the same "identifier -> handler" map pattern,
// generalized from event-type keys to SymbolIdentifier keys) and on
// internal/executor/subagent.go's fan-out-and-collect shape for probe
// enrichment and go-to-definition resolution.
package symbol

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/coderunner-dev/agentcore/internal/codeparser"
	"github.com/coderunner-dev/agentcore/internal/editapply"
	"github.com/coderunner-dev/agentcore/internal/editorhost"
	"github.com/coderunner-dev/agentcore/internal/llmclient"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

// mailboxCapacity bounds mailbox draining concurrency per the resource
// model: 1000 concurrent events fanned out per actor.
const mailboxCapacity = 1000

// fanoutLimit bounds per-actor fan-out (probe enrichment, go-to-def,
// outline resolution) at 100 concurrent sub-tasks.
const fanoutLimit = 100

// Hub is the C7 dispatcher: one mailbox per SymbolIdentifier for the
// session's lifetime, a read-mostly directory guarded by a mutex.
type Hub interface {
	// Dispatch routes a request to the target's actor, creating it on
	// first use, and returns a channel the actor will complete exactly
	// once (even on error). sessionID/exchangeID are stamped onto every
	// UIEvent the actor publishes while servicing this request; pass ""
	// for exchangeID when the request isn't tied to an exchange.
	Dispatch(ctx context.Context, sessionID, exchangeID string, target types.SymbolIdentifier, event types.SymbolEvent, toolProperties map[string]any) <-chan types.SymbolEventResponse

	// UIEvents returns the channel UI events are published on.
	UIEvents() <-chan types.UIEvent

	// PublishUI lets callers outside the actor mailbox protocol (the
	// exchange layer, reacting to feedback or finishing a plan) push a
	// UIEvent onto the same stream actors publish to.
	PublishUI(e types.UIEvent)
}

type hub struct {
	mu       sync.RWMutex
	actors   map[string]*Symbol
	host     editorhost.Host
	parser   codeparser.Parser
	asker    llmclient.Asker
	applier  editapply.Applier
	uiEvents chan types.UIEvent
}

func NewHub(host editorhost.Host, parser codeparser.Parser, asker llmclient.Asker, applier editapply.Applier) Hub {
	return &hub{
		actors:   make(map[string]*Symbol),
		host:     host,
		parser:   parser,
		asker:    asker,
		applier:  applier,
		uiEvents: make(chan types.UIEvent, 256),
	}
}

func (h *hub) UIEvents() <-chan types.UIEvent { return h.uiEvents }

// actorFor returns the actor for id, creating and starting it if this is
// the first request that ever targeted this identifier. Copy-on-read: the
// common path only takes the read lock.
func (h *hub) actorFor(id types.SymbolIdentifier) *Symbol {
	key := id.Key()

	h.mu.RLock()
	a, ok := h.actors[key]
	h.mu.RUnlock()
	if ok {
		return a
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.actors[key]; ok {
		return a
	}
	a = newSymbol(id, h)
	h.actors[key] = a
	go a.run()
	return a
}

func (h *hub) Dispatch(ctx context.Context, sessionID, exchangeID string, target types.SymbolIdentifier, event types.SymbolEvent, toolProperties map[string]any) <-chan types.SymbolEventResponse {
	reply := make(chan types.SymbolEventResponse, 1)
	req := &types.SymbolEventRequest{
		Target:         target,
		Event:          event,
		ToolProperties: toolProperties,
		RequestID:      ulid.Make().String(),
		SessionID:      sessionID,
		ExchangeID:     exchangeID,
		ReplyCh:        reply,
	}

	actor := h.actorFor(target)
	select {
	case actor.mailbox <- req:
	case <-ctx.Done():
		reply <- types.SymbolEventResponse{Kind: types.SymbolResponseError, Err: &types.SymbolError{
			Kind: types.SymbolErrCancelledResponseStream, Message: "dispatch cancelled",
		}}
	}
	return reply
}

func (h *hub) publish(e types.UIEvent) {
	select {
	case h.uiEvents <- e:
	default:
	}
}

func (h *hub) PublishUI(e types.UIEvent) { h.publish(e) }
