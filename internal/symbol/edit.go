package symbol

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/coderunner-dev/agentcore/internal/editapply"
	"github.com/coderunner-dev/agentcore/pkg/types"
)

// generateInitialRequest decides, for a freshly-targeted symbol, whether to
// edit the symbol wholesale, narrow the edit to specific sub-symbols, or
// insert new code when the symbol doesn't exist yet, then drives the edit
// through the same path editImplementations uses.
func (s *Symbol) generateInitialRequest(ctx context.Context, req *types.InitialRequestEvent) error {
	s.queryMu.Lock()
	s.lastQuery = req.Query
	s.queryMu.Unlock()

	nodes := s.refreshOutline(ctx)

	if len(nodes) == 0 {
		return s.insertNewSymbol(ctx, req)
	}

	if req.FullSymbol {
		return s.editImplementations(ctx, nodes)
	}

	targets := nodes
	if !req.BigSearch {
		narrowed, err := s.narrowToRelevant(ctx, req.Query, nodes)
		if err == nil && len(narrowed) > 0 {
			targets = narrowed
		}
	}
	return s.editImplementations(ctx, targets)
}

// narrowToRelevant asks the LLM which of the symbol's outline nodes are
// actually relevant to the query, falling back to "all of them" when the
// model's answer can't be matched back to a node name.
func (s *Symbol) narrowToRelevant(ctx context.Context, query string, nodes []types.OutlineNode) ([]types.OutlineNode, error) {
	var names strings.Builder
	for _, n := range nodes {
		names.WriteString(n.Name)
		names.WriteString("\n")
	}
	answer, err := s.hub.asker.Ask(ctx,
		"Given this list of member names and a request, reply with only the names that need to change, one per line.",
		names.String()+"\n\nRequest: "+query)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool)
	for _, line := range strings.Split(answer, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			wanted[line] = true
		}
	}
	var out []types.OutlineNode
	for _, n := range nodes {
		if wanted[n.Name] {
			out = append(out, n)
		}
	}
	return out, nil
}

// insertNewSymbol asks the LLM for an insertion anchor in the target file
// and appends the new implementation there, used when a symbol is being
// created rather than edited.
func (s *Symbol) insertNewSymbol(ctx context.Context, req *types.InitialRequestEvent) error {
	if s.id.FsFilePath == nil {
		return &types.SymbolError{Kind: types.SymbolErrUserContext, Message: "cannot insert a symbol with no target file"}
	}
	file, err := s.hub.host.OpenFile(ctx, *s.id.FsFilePath)
	if err != nil {
		return &types.SymbolError{Kind: types.SymbolErrIO, Message: err.Error()}
	}

	code, err := s.hub.asker.Ask(ctx,
		"Write the full implementation for the requested symbol, and nothing else.",
		fmt.Sprintf("File:\n%s\n\nRequest: %s\n\nSymbol name: %s", file.Contents, req.Query, s.id.Name))
	if err != nil {
		return &types.SymbolError{Kind: types.SymbolErrToolError, Message: err.Error()}
	}

	endOfFile := types.Position{Line: strings.Count(file.Contents, "\n") + 1}
	outcome, err := s.hub.applier.Apply(ctx, editapply.Request{
		RequestID:  s.id.Key(),
		FsFilePath: *s.id.FsFilePath,
		Strategy:   editapply.StrategyInsertion,
		Target:     types.Range{Start: endOfFile, End: endOfFile},
		NewText:    "\n" + code + "\n",
	})
	if err != nil {
		return err
	}
	s.publish(ctx, types.UIEvent{Kind: types.UIEditedCode, Path: *s.id.FsFilePath, NewText: outcome.DiffText})
	s.refreshOutline(ctx)
	s.publish(ctx, types.UIEvent{Kind: types.UIEditsMarkedComplete, Path: *s.id.FsFilePath})
	s.publish(ctx, types.UIEvent{Kind: types.UIRequestReview, Path: *s.id.FsFilePath})
	return nil
}

// editImplementations runs the edit algorithm over each targeted
// sub-symbol in turn: gather editing context, ask the LLM for the new
// text, and stream it through the applier's correctness loop.
func (s *Symbol) editImplementations(ctx context.Context, subSymbols []types.OutlineNode) error {
	if s.id.FsFilePath == nil {
		return &types.SymbolError{Kind: types.SymbolErrUserContext, Message: "cannot edit a symbol with no target file"}
	}

	s.queryMu.Lock()
	query := s.lastQuery
	s.queryMu.Unlock()
	if query == "" {
		query = "Apply the requested change."
	}

	for _, sub := range subSymbols {
		s.publish(ctx, types.UIEvent{Kind: types.UIEditsStarted, Path: sub.FsFilePath})

		newText, err := s.hub.asker.Ask(ctx,
			"Rewrite the given code to satisfy the request. Reply with only the replacement code, no commentary, no fences.",
			fmt.Sprintf("Request: %s\n\nCode:\n%s", query, sub.Content))
		if err != nil {
			return &types.SymbolError{Kind: types.SymbolErrToolError, Message: err.Error()}
		}
		newText = strings.TrimSuffix(strings.TrimPrefix(newText, "```\n"), "```")

		outcome, err := s.hub.applier.Apply(ctx, editapply.Request{
			RequestID:  s.id.Key() + ":" + sub.Name,
			FsFilePath: sub.FsFilePath,
			Strategy:   editapply.StrategyNarrow,
			Target:     sub.Range,
			OldText:    sub.Content,
			NewText:    newText,
		})
		if err != nil {
			return err
		}

		s.publish(ctx, types.UIEvent{
			Kind:    types.UIEditedCode,
			Path:    sub.FsFilePath,
			Range:   &outcome.FinalRange,
			NewText: outcome.DiffText,
		})
	}

	s.refreshOutline(ctx)
	s.requestFollowups(ctx, subSymbols)
	s.publish(ctx, types.UIEvent{Kind: types.UIEditsMarkedComplete, Path: *s.id.FsFilePath})
	s.publish(ctx, types.UIEvent{Kind: types.UIRequestReview, Path: *s.id.FsFilePath})
	return nil
}

// requestFollowups looks up the symbols each just-edited sub-symbol
// references and asks them, via a probe, whether the edit leaves them
// needing a change of their own. Best-effort: a lookup or probe failure for
// one referenced symbol doesn't block the others or fail the edit.
func (s *Symbol) requestFollowups(ctx context.Context, subSymbols []types.OutlineNode) {
	referenced := make(map[string]types.SymbolIdentifier)
	for _, sub := range subSymbols {
		defs, err := s.hub.host.GoToDefinition(ctx, sub.FsFilePath, sub.Range.Start)
		if err != nil {
			continue
		}
		for _, d := range defs {
			if d.FsFilePath == sub.FsFilePath && d.Name == sub.Name {
				continue
			}
			id := types.SymbolIdentifier{Name: d.Name, FsFilePath: &d.FsFilePath}
			referenced[id.Key()] = id
		}
	}
	if len(referenced) == 0 {
		return
	}

	requestID := ulid.Make().String()
	for _, target := range referenced {
		s.publish(ctx, types.UIEvent{
			Kind:    types.UISubSymbolStep,
			Path:    *target.FsFilePath,
			Message: "checking referenced symbol " + target.Name + " for followups",
		})
		reply := s.hub.Dispatch(ctx, sessionIDFrom(ctx), exchangeIDFrom(ctx), target, types.SymbolEvent{
			Kind: types.SymbolEventProbe,
			Probe: &types.ProbeEvent{
				ProbeRequest:      "An edit was just applied to " + s.id.Name + ". Does this symbol need a follow-up change? Answer briefly, or NONE.",
				OriginalRequestID: requestID,
				History:           []types.SymbolIdentifier{s.id},
			},
		}, nil)
		select {
		case <-reply:
		case <-ctx.Done():
			return
		}
	}
}
