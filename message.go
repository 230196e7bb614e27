package hub

import "maps"

// MessageType is the integer tag written after the headers map of every frame.
// The same table is used by both the encoder and the decoder.
type MessageType int

const (
	InvocationType       MessageType = 1
	StreamItemType       MessageType = 2
	CompletionType       MessageType = 3
	StreamInvocationType MessageType = 4
	CancelInvocationType MessageType = 5
	PingType             MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case InvocationType:
		return "Invocation"
	case StreamItemType:
		return "StreamItem"
	case CompletionType:
		return "Completion"
	case StreamInvocationType:
		return "StreamInvocation"
	case CancelInvocationType:
		return "CancelInvocation"
	case PingType:
		return "Ping"
	default:
		return "Unknown"
	}
}

// ResultKind selects which payload a completion carries.
type ResultKind int

const (
	ErrorResult   ResultKind = 1
	VoidResult    ResultKind = 2
	NonVoidResult ResultKind = 3
)

// Headers holds string metadata attached to a message.
// A nil Headers is the canonical empty value.
type Headers map[string]string

// EmptyHeaders is shared by every message decoded without headers.
var EmptyHeaders Headers

// Equal reports whether both maps hold the same entries, treating nil and empty as equal.
func (h Headers) Equal(other Headers) bool {
	return maps.Equal(h, other)
}

// Message is one of the six hub message kinds. The set is closed:
// only the types in this package implement it.
type Message interface {
	// Type returns the wire tag of the message.
	Type() MessageType

	hubMessage()
}

// Arguments is the outcome of binding an invocation's arguments:
// either the bound values or the error that prevented binding.
type Arguments struct {
	values []any
	err    error
}

// BoundArguments returns a successful binding outcome.
func BoundArguments(values ...any) Arguments {
	return Arguments{values: values}
}

// BindingFailed returns a failed binding outcome. A nil err is replaced
// by ErrArgumentBinding so that the outcome stays failed.
func BindingFailed(err error) Arguments {
	if err == nil {
		err = ErrArgumentBinding
	}
	return Arguments{err: err}
}

// Bound reports whether the arguments were bound successfully.
func (a Arguments) Bound() bool { return a.err == nil }

// Values returns the bound values, or nil if binding failed.
func (a Arguments) Values() []any { return a.values }

// Err returns the captured binding error, or nil.
func (a Arguments) Err() error { return a.err }

// InvocationMessage asks the peer to run Target.
// An empty InvocationID marks a fire-and-forget call that expects no completion.
type InvocationMessage struct {
	Headers      Headers
	InvocationID string
	Target       string
	Arguments    Arguments
}

// StreamInvocationMessage asks the peer to run Target and stream its results
// back as StreamItem messages followed by a Completion.
type StreamInvocationMessage struct {
	Headers      Headers
	InvocationID string
	Target       string
	Arguments    Arguments
}

// StreamItemMessage carries one item of a streaming invocation.
type StreamItemMessage struct {
	Headers      Headers
	InvocationID string
	Item         any
}

// CompletionMessage ends an invocation. Error takes precedence over Result;
// Result is only meaningful when HasResult is set.
//
// Completions built with the New*Completion constructors or decoded from
// the wire carry their result kind explicitly, so an error completion with
// an empty message stays an error.
type CompletionMessage struct {
	Headers      Headers
	InvocationID string
	Error        string
	Result       any
	HasResult    bool

	kind ResultKind
}

// ResultKind returns the result kind the completion was built or decoded
// with. For a literal CompletionMessage it is derived from the populated fields.
func (m *CompletionMessage) ResultKind() ResultKind {
	if m.kind != 0 {
		return m.kind
	}
	switch {
	case m.Error != "":
		return ErrorResult
	case m.HasResult:
		return NonVoidResult
	default:
		return VoidResult
	}
}

// CancelInvocationMessage cancels a running streaming invocation.
type CancelInvocationMessage struct {
	Headers      Headers
	InvocationID string
}

// PingMessage is the keep-alive message. It carries no payload.
type PingMessage struct{}

// Ping is the only PingMessage value; decoding a ping always returns it.
var Ping = &PingMessage{}

func (*InvocationMessage) Type() MessageType       { return InvocationType }
func (*StreamInvocationMessage) Type() MessageType { return StreamInvocationType }
func (*StreamItemMessage) Type() MessageType       { return StreamItemType }
func (*CompletionMessage) Type() MessageType       { return CompletionType }
func (*CancelInvocationMessage) Type() MessageType { return CancelInvocationType }
func (*PingMessage) Type() MessageType             { return PingType }

func (*InvocationMessage) hubMessage()       {}
func (*StreamInvocationMessage) hubMessage() {}
func (*StreamItemMessage) hubMessage()       {}
func (*CompletionMessage) hubMessage()       {}
func (*CancelInvocationMessage) hubMessage() {}
func (*PingMessage) hubMessage()             {}

// NewErrorCompletion builds the completion reporting err for invocationID.
func NewErrorCompletion(invocationID string, err string) *CompletionMessage {
	return &CompletionMessage{InvocationID: invocationID, Error: err, kind: ErrorResult}
}

// NewVoidCompletion builds a successful completion without a result.
func NewVoidCompletion(invocationID string) *CompletionMessage {
	return &CompletionMessage{InvocationID: invocationID, kind: VoidResult}
}

// NewResultCompletion builds a successful completion carrying result.
func NewResultCompletion(invocationID string, result any) *CompletionMessage {
	return &CompletionMessage{InvocationID: invocationID, Result: result, HasResult: true, kind: NonVoidResult}
}

// BindingFailureCompletion turns the captured binding error of an invocation
// into the error completion owed to its caller. It returns nil when the
// arguments were bound or the invocation expects no response.
func BindingFailureCompletion(msg Message) *CompletionMessage {
	var id string
	var args Arguments
	switch m := msg.(type) {
	case *InvocationMessage:
		id, args = m.InvocationID, m.Arguments
	case *StreamInvocationMessage:
		id, args = m.InvocationID, m.Arguments
	default:
		return nil
	}
	if args.Bound() || id == "" {
		return nil
	}
	return NewErrorCompletion(id, args.Err().Error())
}
