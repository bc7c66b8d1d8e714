package symbol

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

// probe implements the probe algorithm (4.6), the hardest case: memoize,
// dedup in-flight callers, refresh state, run sub-symbol discovery and a
// direct-answer attempt concurrently, enrich and fan out to peer symbols
// through the hub, then summarize.
func (s *Symbol) probe(ctx context.Context, ev *types.ProbeEvent) (string, error) {
	// 1. Memoize.
	s.probeMu.Lock()
	if cached, ok := s.probeQuestionsAnswer[ev.OriginalRequestID]; ok {
		s.probeMu.Unlock()
		if cached == nil {
			return "", &types.SymbolError{Kind: types.SymbolErrCachedQueryFailed, Message: "a prior probe with this request id already failed"}
		}
		return *cached, nil
	}
	s.probeQuestionsAsked = append(s.probeQuestionsAsked, ev.ProbeRequest)
	s.probeMu.Unlock()

	// 2. In-flight dedup: singleflight groups concurrent callers sharing
	// OriginalRequestID into one execution; every caller gets the same
	// result, satisfying both dedup and the memoize-on-resolution step.
	v, err, _ := s.sf.Do(ev.OriginalRequestID, func() (any, error) {
		answer, err := s.probeUncached(ctx, ev)

		s.probeMu.Lock()
		defer s.probeMu.Unlock()
		if err != nil {
			s.probeQuestionsAnswer[ev.OriginalRequestID] = nil
			return "", err
		}
		s.probeQuestionsAnswer[ev.OriginalRequestID] = &answer
		return answer, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Symbol) probeUncached(ctx context.Context, ev *types.ProbeEvent) (string, error) {
	// 3. State refresh.
	nodes := s.refreshOutline(ctx)

	// 4. Parallel dual query: probe_sub_symbols and probe_deeper_or_answer.
	var subSymbols []types.OutlineNode
	var directAnswer string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		subSymbols = s.probeSubSymbols(gctx, ev.ProbeRequest)
		return nil
	})
	g.Go(func() error {
		a, err := s.probeDeeperOrAnswer(gctx, ev.ProbeRequest)
		directAnswer = a
		return err
	})
	if err := g.Wait(); err != nil {
		return "", &types.SymbolError{Kind: types.SymbolErrToolError, Message: err.Error()}
	}
	if directAnswer != "" {
		s.publish(ctx, types.UIEvent{Kind: types.UIProbeAnswer, Answer: directAnswer})
		return directAnswer, nil
	}

	// 5. Sub-symbol enrichment: ask for a follow-up question or answer per
	// chosen sub-symbol.
	type hint struct {
		target types.SymbolIdentifier
		note   string
	}
	var hints []hint
	for _, sub := range subSymbols {
		note, err := s.hub.asker.Ask(ctx,
			"Given this code snippet and the question history, produce either a direct answer or a precise follow-up question.",
			sub.Content+"\n\nOriginal question: "+ev.ProbeRequest)
		if err != nil {
			continue
		}
		// 6. Go-to-definition fan-out, dropping self-references.
		defs, err := s.hub.host.GoToDefinition(ctx, sub.FsFilePath, sub.Range.Start)
		if err != nil {
			continue
		}
		for _, d := range defs {
			d := d
			if s.id.FsFilePath != nil && d.FsFilePath == *s.id.FsFilePath && d.Name == s.id.Name && containsNode(nodes, d) {
				continue
			}
			hints = append(hints, hint{target: types.SymbolIdentifier{Name: d.Name, FsFilePath: &d.FsFilePath}, note: note})
		}
	}

	// 7. Question batching by target.
	byTarget := make(map[string][]string)
	targets := make(map[string]types.SymbolIdentifier)
	for _, h := range hints {
		key := h.target.Key()
		byTarget[key] = append(byTarget[key], h.note)
		targets[key] = h.target
	}

	if len(targets) == 0 {
		// 9. Leaf: try hard answer with all available implementations.
		answer, err := s.hub.asker.Ask(ctx,
			"Answer as best as possible using only the given implementations; there are no further symbols to consult.",
			s.renderImplementations()+"\n\nQuestion: "+ev.ProbeRequest)
		if err != nil {
			return "", &types.SymbolError{Kind: types.SymbolErrToolError, Message: err.Error()}
		}
		s.publish(ctx, types.UIEvent{Kind: types.UIProbeAnswer, Answer: answer})
		return answer, nil
	}

	history := append(append([]types.SymbolIdentifier{}, ev.History...), s.id)

	// 8. Fan-out & collect, bounded by fanoutLimit.
	type result struct {
		key    string
		answer string
	}
	results := make(chan result, len(targets))
	fg, fgctx := errgroup.WithContext(ctx)
	fg.SetLimit(fanoutLimit)
	for key, target := range targets {
		key, target := key, target
		fg.Go(func() error {
			probeReq := types.SymbolEvent{
				Kind: types.SymbolEventProbe,
				Probe: &types.ProbeEvent{
					ProbeRequest:      strings.Join(byTarget[key], "\n"),
					OriginalRequestID: ev.OriginalRequestID,
					History:           history,
				},
			}
			reply := s.hub.Dispatch(fgctx, sessionIDFrom(fgctx), exchangeIDFrom(fgctx), target, probeReq, nil)
			select {
			case resp := <-reply:
				if resp.Kind == types.SymbolResponseProbeAnswer {
					results <- result{key: key, answer: resp.Message}
				}
				return nil
			case <-fgctx.Done():
				return fgctx.Err()
			}
		})
	}
	if err := fg.Wait(); err != nil {
		return "", &types.SymbolError{Kind: types.SymbolErrIO, Message: err.Error()}
	}
	close(results)

	var summary strings.Builder
	for r := range results {
		summary.WriteString(r.answer)
		summary.WriteString("\n")
	}

	final, err := s.hub.asker.Ask(ctx,
		"Summarize the following sub-answers into one coherent response to the original question.",
		"Question: "+ev.ProbeRequest+"\n\nSub-answers:\n"+summary.String())
	if err != nil {
		return "", &types.SymbolError{Kind: types.SymbolErrToolError, Message: err.Error()}
	}
	s.publish(ctx, types.UIEvent{Kind: types.UIProbeAnswer, Answer: final})
	return final, nil
}

func (s *Symbol) probeSubSymbols(ctx context.Context, query string) []types.OutlineNode {
	s.implMu.RLock()
	impls := append([]types.OutlineNode{}, s.implementations...)
	s.implMu.RUnlock()

	var subs []types.OutlineNode
	for _, impl := range impls {
		subs = append(subs, s.hub.parser.SubSymbols(impl, impl.Content)...)
	}
	return subs
}

func (s *Symbol) probeDeeperOrAnswer(ctx context.Context, query string) (string, error) {
	answer, err := s.hub.asker.Ask(ctx,
		"If you can answer the question directly from this symbol's implementation alone, answer it. Otherwise reply with exactly NEEDS_DEEPER.",
		s.renderImplementations()+"\n\nQuestion: "+query)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "NEEDS_DEEPER" {
		return "", nil
	}
	return answer, nil
}

func containsNode(nodes []types.OutlineNode, target types.OutlineNode) bool {
	for _, n := range nodes {
		if n.Equal(target) {
			return true
		}
	}
	return false
}
