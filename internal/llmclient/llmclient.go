// Package llmclient is the C3 adapter: stream_completion(messages, model,
// provider, api_key, event_tags, sender) -> Result<full_text>, emitting a
// lazy sequence of Deltas until completion or cancellation. On
// cancellation the stream stops producing deltas and the call returns an
// error; no partial output is replayed to the caller beyond what it has
// already consumed from the channel.
//
// It wraps internal/provider's eino-backed Provider (cloudwego/eino,
// eino-ext claude/openai/ark chat models) exactly as
// internal/session/loop.go already does, adding the retry schedule via
// cenkalti/backoff/v4.
package llmclient

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"

	"github.com/coderunner-dev/agentcore/internal/provider"
)

// Delta is one fragment of a streaming completion.
type Delta struct {
	TextFragment string
	Cumulative   string
}

// ErrCancelled is returned when the context is cancelled mid-stream; no
// further deltas are sent on sender after this point.
var ErrCancelled = errors.New("llmclient: stream cancelled")

const (
	retryInitialInterval = 1 * time.Second
	retryMaxInterval     = 30 * time.Second
	retryMaxElapsedTime  = 2 * time.Minute
)

// Client is the C3 contract.
type Client interface {
	StreamCompletion(ctx context.Context, req *provider.CompletionRequest, prov provider.Provider, sender chan<- Delta) (string, error)
}

type client struct{}

func New() Client { return &client{} }

func (c *client) StreamCompletion(ctx context.Context, req *provider.CompletionRequest, prov provider.Provider, sender chan<- Delta) (string, error) {
	var fullText string

	op := func() error {
		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			return err
		}
		defer stream.Close()

		var cumulative string
		for {
			select {
			case <-ctx.Done():
				return backoff.Permanent(ErrCancelled)
			default:
			}

			msg, err := stream.Recv()
			if err == io.EOF {
				fullText = cumulative
				return nil
			}
			if err != nil {
				return err
			}
			if msg.Content == "" {
				continue
			}
			cumulative += msg.Content
			select {
			case sender <- Delta{TextFragment: msg.Content, Cumulative: cumulative}:
			case <-ctx.Done():
				return backoff.Permanent(ErrCancelled)
			}
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval
	bo.MaxElapsedTime = retryMaxElapsedTime

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if errors.Is(err, ErrCancelled) {
			return "", ErrCancelled
		}
		return "", err
	}
	return fullText, nil
}

// Asker is a single-turn question/answer convenience built on top of
// StreamCompletion, used by the symbol actor and edit applier for the
// "try hard answer", sub-symbol enrichment, and anchor-selection prompts,
// none of which need the caller to consume a Delta stream.
type Asker interface {
	Ask(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type boundAsker struct {
	llm   Client
	prov  provider.Provider
	model string
}

func NewAsker(llm Client, prov provider.Provider, model string) Asker {
	return &boundAsker{llm: llm, prov: prov, model: model}
}

func (a *boundAsker) Ask(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	sink := make(chan Delta, 16)
	done := make(chan struct{})
	go func() {
		for range sink {
		}
		close(done)
	}()

	req := &provider.CompletionRequest{
		Model: a.model,
		Messages: []*schema.Message{
			{Role: schema.System, Content: systemPrompt},
			{Role: schema.User, Content: userPrompt},
		},
	}
	text, err := a.llm.StreamCompletion(ctx, req, a.prov, sink)
	close(sink)
	<-done
	return text, err
}
