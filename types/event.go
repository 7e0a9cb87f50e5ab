package types

// Status 是分发结果的状态标签
type Status string

const (
	StatusDone        Status = "done"
	StatusIgnored     Status = "ignored"
	StatusInvalid     Status = "invalid"
	StatusTerminated  Status = "terminated"
	StatusUnknownTeam Status = "unknown_team"
	StatusUnhandled   Status = "unhandled"
	StatusUnknownGoal Status = "unknown_goal"
	StatusComplete    Status = "complete"
	StatusPlanned     Status = "planned"
)

// Termination reasons
const (
	ReasonLoopBudgetExceeded  = "loop_budget_exceeded"
	ReasonTokenBudgetExceeded = "token_budget_exceeded"
)

// Event 是路由到团队的外部事件
type Event struct {
	ID      string         `json:"id,omitempty" yaml:"id,omitempty"`
	Type    string         `json:"type" yaml:"type"`
	Payload map[string]any `json:"payload" yaml:"payload"`
}

// NewEvent builds an event, normalising a nil payload to an empty map.
func NewEvent(eventType string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: eventType, Payload: payload}
}

// Result 是单次分发的结构化结果
type Result struct {
	Status Status `json:"status"`
	Result any    `json:"result,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Done wraps a handler output.
func Done(result any) Result { return Result{Status: StatusDone, Result: result} }

// Ignored is returned when no handler owns an event type.
func Ignored() Result { return Result{Status: StatusIgnored} }

// Invalid is returned when a payload fails schema coercion.
func Invalid(err error) Result {
	r := Result{Status: StatusInvalid}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Terminated is returned once a budget has been exceeded.
func Terminated(reason string) Result { return Result{Status: StatusTerminated, Reason: reason} }

// Summary renders the part of a result worth writing to an activity log:
// the handler output when present, the whole result otherwise.
func (r Result) Summary() any {
	if r.Result != nil {
		return r.Result
	}
	return r
}
