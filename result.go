package letsim

// ResultKind classifies a finished model turn.
type ResultKind string

const (
	ResultAssistant ResultKind = "assistant"
	ResultToolCall  ResultKind = "tool_call"
)

// ToolPolicy decides whether a turn that produced tool calls is a tool-call
// turn.
type ToolPolicy int

const (
	// ToolPolicyAny makes any populated tool-call slot a tool-call result,
	// carrying whatever text was streamed alongside.
	ToolPolicyAny ToolPolicy = iota
	// ToolPolicyExclusive treats tool calls as terminal only when no text
	// was streamed.
	ToolPolicyExclusive
)

// ParseToolPolicy maps a configuration value to a ToolPolicy.
func ParseToolPolicy(s string) (ToolPolicy, bool) {
	switch s {
	case "", "any":
		return ToolPolicyAny, true
	case "exclusive":
		return ToolPolicyExclusive, true
	default:
		return ToolPolicyAny, false
	}
}

func (p ToolPolicy) String() string {
	if p == ToolPolicyExclusive {
		return "exclusive"
	}
	return "any"
}

// Result is the final outcome of decoding one streamed response.
type Result struct {
	Kind         ResultKind
	FinalText    string
	ToolCalls    []ToolCall
	HadToolCalls bool
}

// NewResult classifies accumulated text and tool calls under policy.
func NewResult(text string, calls []ToolCall, policy ToolPolicy) Result {
	r := Result{
		Kind:         ResultAssistant,
		FinalText:    text,
		ToolCalls:    calls,
		HadToolCalls: len(calls) > 0,
	}
	if !r.HadToolCalls {
		return r
	}
	switch policy {
	case ToolPolicyExclusive:
		if text == "" {
			r.Kind = ResultToolCall
		}
	default:
		r.Kind = ResultToolCall
	}
	return r
}
