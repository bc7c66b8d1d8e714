package types

// UIEventKind is the closed set of SSE event kinds the editor consumes.
// Every UIEvent carries SessionID and ExchangeID; FinishedExchange is
// emitted exactly once per exchange.
type UIEventKind string

const (
	UIInferenceStarted         UIEventKind = "inference_started"
	UIToolThinking             UIEventKind = "tool_thinking"
	UIToolFound                UIEventKind = "tool_found"
	UIToolParameter            UIEventKind = "tool_parameter"
	UIToolNotFound             UIEventKind = "tool_not_found"
	UIChat                     UIEventKind = "chat"
	UIPlanTitleAdded           UIEventKind = "plan_title_added"
	UIPlanDescriptionUpdated   UIEventKind = "plan_description_updated"
	UIPlanCompleteAdded        UIEventKind = "plan_complete_added"
	UIPlanRegeneration         UIEventKind = "plan_regeneration"
	UIPlanAsAccepted           UIEventKind = "plan_as_accepted"
	UIPlanAsCancelled          UIEventKind = "plan_as_cancelled"
	UIPlanAsFinished           UIEventKind = "plan_as_finished"
	UIStartPlanGeneration      UIEventKind = "start_plan_generation"
	UIRangeSelectionForEdit    UIEventKind = "range_selection_for_edit"
	UIEditsStarted             UIEventKind = "edits_started"
	UIEditedCode               UIEventKind = "edited_code"
	UIEditsMarkedComplete      UIEventKind = "edits_marked_complete"
	UIEditsAccepted            UIEventKind = "edits_accepted"
	UIEditsCancelledInExchange UIEventKind = "edits_cancelled_in_exchange"
	UIRequestReview            UIEventKind = "request_review"
	UISendVariables            UIEventKind = "send_variables"
	UIProbeAnswer              UIEventKind = "probe_answer"
	UISubSymbolStep            UIEventKind = "sub_symbol_step"
	UIFinishedExchange         UIEventKind = "finished_exchange"
)

// UIEvent is the payload streamed on the `ui` SSE event name.
type UIEvent struct {
	Kind       UIEventKind `json:"kind"`
	SessionID  string      `json:"sessionId"`
	ExchangeID string      `json:"exchangeId"`

	// Field usage varies by Kind; all are optional and set only when
	// relevant to that kind (mirrors the union the original streams).
	ContentUpToNow string            `json:"contentUpUntilNow,omitempty"`
	Delta          string            `json:"delta,omitempty"`
	FieldName      string            `json:"fieldName,omitempty"`
	ToolType       ToolKind          `json:"toolType,omitempty"`
	FullOutput     string            `json:"fullOutput,omitempty"`
	Reply          string            `json:"reply,omitempty"`
	StepIndex      int               `json:"stepIndex,omitempty"`
	Title          string            `json:"title,omitempty"`
	Description    string            `json:"description,omitempty"`
	Paths          []string          `json:"paths,omitempty"`
	Range          *Range            `json:"range,omitempty"`
	Path           string            `json:"path,omitempty"`
	NewText        string            `json:"newText,omitempty"`
	Answer         string            `json:"answer,omitempty"`
	Message        string            `json:"message,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
}
