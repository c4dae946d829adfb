package types

// WireEvent is one record of the wire event log exchanged with an execution
// backend. Name keys a schema; Args holds raw wire values (address strings,
// big integers, 32-byte strings, raw strings).
type WireEvent struct {
	Name string         `json:"event"`
	Args map[string]any `json:"args"`
}

// Operation names a mutating call accepted by an execution backend.
type Operation string

const (
	OpCreateStore Operation = "createStore"
	OpAppend      Operation = "append"
	OpGrant       Operation = "grant"
	OpRevoke      Operation = "revoke"
)

// Idempotent reports whether resubmitting op after an unknown outcome
// cannot change state twice.
func (op Operation) Idempotent() bool {
	return op == OpGrant || op == OpRevoke
}

// Submission describes one atomic mutating call. Args and Properties carry
// wire values laid out by the command schemas (AppendCommand,
// AppendProperty, RoleCommand).
type Submission struct {
	Op         Operation        `json:"op"`
	Caller     string           `json:"caller"`
	Store      string           `json:"store,omitempty"`
	Args       map[string]any   `json:"args,omitempty"`
	Properties []map[string]any `json:"properties,omitempty"`
}

// SubmitResponse is the reply of a successful submission.
type SubmitResponse struct {
	Events []WireEvent `json:"events"`
}
