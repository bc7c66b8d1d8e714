// Package editorhost is the C1 adapter: typed calls to the external editor
// sidecar (open file, outline, go-to-definition, diagnostics, streamed
// apply-edit, terminal). It is a thin net/http client in the same spirit as
// the teacher's internal/lsp package (request/response correlation, one
// connection reused across calls) but speaks JSON over HTTP to the sidecar
// instead of JSON-RPC over stdio to a spawned language server, since the
// sidecar here is an external HTTP process rather than something this
// process spawns.
package editorhost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

// ErrorKind closes the EditorHostError taxonomy from the error design:
// network, malformed response, unsupported operation.
type ErrorKind string

const (
	ErrNetwork     ErrorKind = "network"
	ErrMalformed   ErrorKind = "malformed"
	ErrUnsupported ErrorKind = "unsupported"
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("editorhost: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type OpenFileResult struct {
	Contents   string      `json:"contents"`
	LanguageID string      `json:"languageId"`
	FullRange  types.Range `json:"fullRange"`
}

type DiagnosticsMap map[string][]Diagnostic

type Diagnostic struct {
	Range    types.Range `json:"range"`
	Message  string      `json:"message"`
	Severity string      `json:"severity"`
}

// EditStreamKind is one of start/delta/end, applied in submission order
// within the same RequestID.
type EditStreamKind string

const (
	EditStart EditStreamKind = "start"
	EditDelta EditStreamKind = "delta"
	EditEnd   EditStreamKind = "end"
)

type ApplyEditEvent struct {
	RequestID string         `json:"requestId"`
	Kind      EditStreamKind `json:"kind"`
	Path      string         `json:"path"`
	Range     types.Range    `json:"range,omitempty"`
	Delta     string         `json:"delta,omitempty"`
}

type TerminalResult struct {
	Combined string `json:"combined"`
	ExitCode int    `json:"exitCode"`
}

// Host is the C1 contract. open_file is cached by path for the life of a
// request by the caller (symbol actors keep their own per-request cache);
// this adapter itself stays stateless aside from the http.Client.
type Host interface {
	OpenFile(ctx context.Context, path string) (*OpenFileResult, error)
	OutlineNodes(ctx context.Context, path string) ([]types.OutlineNode, error)
	GoToDefinition(ctx context.Context, path string, pos types.Position) ([]types.OutlineNode, error)
	Diagnostics(ctx context.Context, workspace string) (DiagnosticsMap, error)
	ApplyEditStream(ctx context.Context, event ApplyEditEvent) error
	TerminalCommand(ctx context.Context, cmd string) (*TerminalResult, error)
}

type httpHost struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) Host {
	return &httpHost{baseURL: baseURL, client: &http.Client{Timeout: 0}}
}

func (h *httpHost) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: ErrMalformed, Err: err}
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: ErrNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return &Error{Kind: ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return &Error{Kind: ErrUnsupported, Err: fmt.Errorf("%s not supported by sidecar", path)}
	}
	if resp.StatusCode >= 400 {
		return &Error{Kind: ErrNetwork, Err: fmt.Errorf("sidecar returned %d", resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: ErrMalformed, Err: err}
	}
	return nil
}

func (h *httpHost) OpenFile(ctx context.Context, path string) (*OpenFileResult, error) {
	var out OpenFileResult
	if err := h.do(ctx, http.MethodGet, "/file?path="+path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *httpHost) OutlineNodes(ctx context.Context, path string) ([]types.OutlineNode, error) {
	var out []types.OutlineNode
	if err := h.do(ctx, http.MethodGet, "/outline?path="+path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *httpHost) GoToDefinition(ctx context.Context, path string, pos types.Position) ([]types.OutlineNode, error) {
	var out []types.OutlineNode
	req := struct {
		Path string        `json:"path"`
		Pos  types.Position `json:"pos"`
	}{path, pos}
	if err := h.do(ctx, http.MethodPost, "/definition", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *httpHost) Diagnostics(ctx context.Context, workspace string) (DiagnosticsMap, error) {
	var out DiagnosticsMap
	if err := h.do(ctx, http.MethodGet, "/diagnostics?workspace="+workspace, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *httpHost) ApplyEditStream(ctx context.Context, event ApplyEditEvent) error {
	return h.do(ctx, http.MethodPost, "/apply-edit", event, nil)
}

func (h *httpHost) TerminalCommand(ctx context.Context, cmd string) (*TerminalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	var out TerminalResult
	req := struct {
		Command string `json:"command"`
	}{cmd}
	if err := h.do(ctx, http.MethodPost, "/terminal", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
