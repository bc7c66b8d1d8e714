package types

// SymbolEventKind tags the closed set of events a Symbol actor can receive.
type SymbolEventKind string

const (
	SymbolEventInitialRequest SymbolEventKind = "initial_request"
	SymbolEventEdit           SymbolEventKind = "edit"
	SymbolEventAskQuestion    SymbolEventKind = "ask_question"
	SymbolEventProbe          SymbolEventKind = "probe"
	SymbolEventOutline        SymbolEventKind = "outline"
	SymbolEventDelete         SymbolEventKind = "delete"
	SymbolEventUserFeedback   SymbolEventKind = "user_feedback"
)

// SymbolEvent is the closed tagged variant a Hub dispatches to a Symbol
// actor's mailbox. Only the field matching Kind is populated.
type SymbolEvent struct {
	Kind SymbolEventKind `json:"kind"`

	InitialRequest *InitialRequestEvent `json:"initialRequest,omitempty"`
	Edit           *EditEvent           `json:"edit,omitempty"`
	AskQuestion    *AskQuestionEvent    `json:"askQuestion,omitempty"`
	Probe          *ProbeEvent          `json:"probe,omitempty"`
	UserFeedback   *UserFeedbackEvent   `json:"userFeedback,omitempty"`
}

type InitialRequestEvent struct {
	Query         string             `json:"query"`
	History       []SymbolIdentifier `json:"history"`
	SymbolsEdited []SymbolIdentifier `json:"symbolsEdited"`
	FullSymbol    bool               `json:"fullSymbol"`
	BigSearch     bool               `json:"bigSearch"`
}

type EditEvent struct {
	SubSymbols []SubSymbol `json:"subSymbols"`
}

type AskQuestionEvent struct {
	Question string `json:"question"`
}

// ProbeEvent carries a SymbolToProbeRequest: a read-only question against a
// symbol that may recursively query its dependencies.
type ProbeEvent struct {
	ProbeRequest      string             `json:"probeRequest"`
	OriginalRequestID string             `json:"originalRequestId"`
	History           []SymbolIdentifier `json:"history"`
}

type UserFeedbackEvent struct {
	Feedback string `json:"feedback"`
	Accepted bool   `json:"accepted"`
}

// SymbolEventRequest is a message sent to an actor's mailbox. ReplyCh is the
// oneshot the actor always completes, even on error. SessionID and
// ExchangeID address the UIEvents the actor publishes while handling this
// request back to the exchange that triggered it; ExchangeID is empty for
// requests that aren't tied to one (e.g. a tool-driven code edit).
type SymbolEventRequest struct {
	Target         SymbolIdentifier
	Event          SymbolEvent
	ToolProperties map[string]any
	RequestID      string
	SessionID      string
	ExchangeID     string
	ReplyCh        chan SymbolEventResponse
}

// SymbolEventResponseKind closes the set of outcomes a mailbox reply carries.
type SymbolEventResponseKind string

const (
	SymbolResponseTaskDone       SymbolEventResponseKind = "task_done"
	SymbolResponseProbeAnswer    SymbolEventResponseKind = "probe_answer"
	SymbolResponseOutline        SymbolEventResponseKind = "outline"
	SymbolResponseError          SymbolEventResponseKind = "error"
	SymbolResponseCachedQueryErr SymbolEventResponseKind = "cached_query_failed"
)

type SymbolEventResponse struct {
	Kind    SymbolEventResponseKind `json:"kind"`
	Message string                  `json:"message,omitempty"`
	Outline []OutlineNode           `json:"outline,omitempty"`
	Err     *SymbolError            `json:"error,omitempty"`
}

// SymbolErrorKind is the closed error taxonomy from the error-handling
// design: ToolError, IO, UserContextError, CachedQueryFailed,
// WrongToolOutput, SnippetNotFound, CancelledResponseStream.
type SymbolErrorKind string

const (
	SymbolErrToolError               SymbolErrorKind = "tool_error"
	SymbolErrIO                      SymbolErrorKind = "io"
	SymbolErrUserContext              SymbolErrorKind = "user_context_error"
	SymbolErrCachedQueryFailed        SymbolErrorKind = "cached_query_failed"
	SymbolErrWrongToolOutput          SymbolErrorKind = "wrong_tool_output"
	SymbolErrSnippetNotFound          SymbolErrorKind = "snippet_not_found"
	SymbolErrCancelledResponseStream  SymbolErrorKind = "cancelled_response_stream"
)

type SymbolError struct {
	Kind    SymbolErrorKind `json:"kind"`
	Message string          `json:"message"`
}

func (e *SymbolError) Error() string { return string(e.Kind) + ": " + e.Message }
