package event

// Kind names a payload variant. It is also the discriminator used in the serialized form.
type Kind string

const (
	KindSystemPrompt        Kind = "system_prompt"
	KindMessage             Kind = "message"
	KindAction              Kind = "action"
	KindObservation         Kind = "observation"
	KindAgentError          Kind = "agent_error"
	KindCondensation        Kind = "condensation"
	KindCondensationRequest Kind = "condensation_request"
	KindCondensationSummary Kind = "condensation_summary"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Payload is the closed set of event contents. The unexported method keeps the set sealed.
type Payload interface {
	Kind() Kind
	sealed()
}

// SystemPrompt is the system instruction for the conversation.
type SystemPrompt struct {
	Content string `json:"content"`
}

// Message is a plain user or assistant utterance.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Action is a tool invocation requested by the model.
//
// BatchID groups the parallel calls emitted by one model response. Single calls use their
// ToolCallID as the batch.
type Action struct {
	ToolName   string         `json:"tool_name"`
	ToolCallID string         `json:"tool_call_id"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Thought    string         `json:"thought,omitempty"`
	BatchID    string         `json:"batch_id"`
}

// Observation is the successful result of a tool invocation.
type Observation struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// AgentError is a failed tool invocation result.
type AgentError struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	Error      string `json:"error"`
}

// Condensation records which events were forgotten and, optionally, the summary that replaces them.
type Condensation struct {
	ForgottenEventIDs []string `json:"forgotten_event_ids"`
	Summary           string   `json:"summary,omitempty"`
	SummaryOffset     *int     `json:"summary_offset,omitempty"`
	LLMResponseID     string   `json:"llm_response_id,omitempty"`
}

// HasSummary reports whether the condensation carries a summary to insert into the view.
func (c Condensation) HasSummary() bool {
	return c.Summary != "" && c.SummaryOffset != nil
}

// CondensationRequest asks the condenser to condense at the next opportunity.
type CondensationRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CondensationSummary is the synthetic summary event the view inserts for a condensation.
// It never appears in the log.
type CondensationSummary struct {
	Summary string `json:"summary"`
}

func (SystemPrompt) Kind() Kind        { return KindSystemPrompt }
func (Message) Kind() Kind             { return KindMessage }
func (Action) Kind() Kind              { return KindAction }
func (Observation) Kind() Kind         { return KindObservation }
func (AgentError) Kind() Kind          { return KindAgentError }
func (Condensation) Kind() Kind        { return KindCondensation }
func (CondensationRequest) Kind() Kind { return KindCondensationRequest }
func (CondensationSummary) Kind() Kind { return KindCondensationSummary }

func (SystemPrompt) sealed()        {}
func (Message) sealed()             {}
func (Action) sealed()              {}
func (Observation) sealed()         {}
func (AgentError) sealed()          {}
func (Condensation) sealed()        {}
func (CondensationRequest) sealed() {}
func (CondensationSummary) sealed() {}
