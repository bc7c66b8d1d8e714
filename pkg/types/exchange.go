package types

// ExchangeState is the lifecycle of an Exchange: created as UserMessage or
// Running, then advances to exactly one terminal state. Defaults to Running
// when absent from a persisted session (backward compatibility).
type ExchangeState string

const (
	ExchangeStateUserMessage ExchangeState = "user_message"
	ExchangeStateRunning     ExchangeState = "running"
	ExchangeStateAccepted    ExchangeState = "accepted"
	ExchangeStateRejected    ExchangeState = "rejected"
	ExchangeStateCancelled   ExchangeState = "cancelled"
)

func (s ExchangeState) IsTerminal() bool {
	switch s {
	case ExchangeStateAccepted, ExchangeStateRejected, ExchangeStateCancelled:
		return true
	default:
		return false
	}
}

// ExchangeTypeKind closes the set of exchange kinds.
type ExchangeTypeKind string

const (
	ExchangeTypeHumanChat ExchangeTypeKind = "human_chat"
	ExchangeTypeAgentChat ExchangeTypeKind = "agent_chat"
	ExchangeTypePlan      ExchangeTypeKind = "plan"
	ExchangeTypeEdit      ExchangeTypeKind = "edit"
)

// EditExchangeKind distinguishes an agentic multi-step edit from an
// anchored, range-scoped one.
type EditExchangeKind string

const (
	EditExchangeAgentic EditExchangeKind = "agentic"
	EditExchangeAnchored EditExchangeKind = "anchored"
)

// ExchangeType is the tagged variant from the data model: HumanChat,
// AgentChat{reply, parent_exchange_id}, Plan, Edit{Agentic|Anchored}.
type ExchangeType struct {
	Kind ExchangeTypeKind `json:"kind"`

	// AgentChat fields. Invariant: always carries a ParentExchangeID
	// pointing at an earlier exchange in the same session.
	Reply            *AgentChatReply `json:"reply,omitempty"`
	ParentExchangeID string          `json:"parentExchangeId,omitempty"`

	// Edit fields.
	EditKind EditExchangeKind `json:"editKind,omitempty"`
}

// AgentChatReplyKind closes the set of reply shapes an AgentChat carries.
type AgentChatReplyKind string

const (
	AgentReplyChat AgentChatReplyKind = "chat"
	AgentReplyPlan AgentChatReplyKind = "plan"
	AgentReplyEdit AgentChatReplyKind = "edit"
	AgentReplyTool AgentChatReplyKind = "tool"
)

type AgentChatReply struct {
	Kind AgentChatReplyKind `json:"kind"`

	Chat *ChatReply `json:"chat,omitempty"`
	Plan *PlanReply `json:"plan,omitempty"`
	Edit *EditReply `json:"edit,omitempty"`
	Tool *ToolReply `json:"tool,omitempty"`
}

type ChatReply struct {
	Reply string `json:"reply"`
}

type PlanReply struct {
	Steps     []PlanStep `json:"steps"`
	Discarded bool       `json:"discarded"`
}

type EditReply struct {
	Diff     string `json:"diff"`
	Accepted bool   `json:"accepted"`
}

type ToolReply struct {
	ToolType      string           `json:"toolType"`
	PartialInput  *ToolInputPartial `json:"partialInput,omitempty"`
	Thinking      string           `json:"thinking"`
}

// Exchange is one turn in a session, user or agent.
type Exchange struct {
	ExchangeID string        `json:"exchangeId"`
	Type       ExchangeType  `json:"type"`
	State      ExchangeState `json:"state"`
}

// IsOpen reports whether the exchange has not yet reached a terminal state.
func (e *Exchange) IsOpen() bool {
	return !e.State.IsTerminal()
}

// CanBeReplied reports whether the exchange is still accepting a feedback
// reaction: it must be Running and an AgentChat (only agent turns are
// accepted/rejected/cancelled by the user).
func (e *Exchange) CanBeReplied() bool {
	return e.State == ExchangeStateRunning && e.Type.Kind == ExchangeTypeAgentChat
}

// HasCodeEdits reports whether this exchange's reply variant carries code
// edits, the precondition for being revert-eligible / cancellable.
func (e *Exchange) HasCodeEdits() bool {
	if e.Type.Kind == ExchangeTypeEdit {
		return true
	}
	if e.Type.Kind == ExchangeTypeAgentChat && e.Type.Reply != nil {
		return e.Type.Reply.Kind == AgentReplyEdit || e.Type.Reply.Kind == AgentReplyPlan
	}
	return false
}
