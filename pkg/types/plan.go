package types

// PlanStep is one step of a Plan: an index, a title/description pair, and
// an optional file target.
type PlanStep struct {
	Index       int     `json:"index"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	FileToEdit  *string `json:"fileToEdit,omitempty"`
}

// Plan is an ordered list of steps, created on the first plan exchange and
// mutated only by append during generation or truncation on revert.
type Plan struct {
	PlanID string     `json:"planId"`
	Steps  []PlanStep `json:"steps"`
}

// DropPlanSteps truncates the plan to its first k steps.
func (p *Plan) DropPlanSteps(k int) {
	if k < 0 {
		k = 0
	}
	if k >= len(p.Steps) {
		return
	}
	p.Steps = p.Steps[:k]
}

// StepSenderEventKind closes the set of events CreatePlan streams while
// materializing a plan.
type StepSenderEventKind string

const (
	StepEventNewStepTitle       StepSenderEventKind = "new_step_title"
	StepEventNewStepDescription StepSenderEventKind = "new_step_description"
	StepEventNewStep            StepSenderEventKind = "new_step"
	StepEventDeveloperMessage   StepSenderEventKind = "developer_message"
	StepEventDone               StepSenderEventKind = "done"
)

type StepSenderEvent struct {
	Kind              StepSenderEventKind `json:"kind"`
	StepIndex         int                 `json:"stepIndex,omitempty"`
	TitleDelta        string              `json:"titleDelta,omitempty"`
	DescriptionDelta  string              `json:"descriptionDelta,omitempty"`
	Step              *PlanStep           `json:"step,omitempty"`
	DeveloperMessage  string              `json:"developerMessage,omitempty"`
}
