package hub

import (
	"bytes"
	"reflect"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ObjectEncoding selects how typed objects are laid out on the wire.
type ObjectEncoding int

const (
	// MapOfNamedFields writes objects as maps keyed by field name.
	MapOfNamedFields ObjectEncoding = iota
	// ArrayOfFields writes objects as positional arrays. Field names are lost,
	// so NewCodec rejects it.
	ArrayOfFields
)

// SerializationConfig is the fixed value-codec configuration of a Codec.
type SerializationConfig struct {
	ObjectEncoding ObjectEncoding
	// AllowPermissiveTypeMatching lets objects decode into types that do not
	// declare every field present on the wire.
	AllowPermissiveTypeMatching bool
}

// CodecOption configures a Codec at construction.
type CodecOption func(*SerializationConfig)

// ObjectEncodingOption sets the object encoding. Only MapOfNamedFields is accepted.
func ObjectEncodingOption(encoding ObjectEncoding) CodecOption {
	return func(c *SerializationConfig) {
		c.ObjectEncoding = encoding
	}
}

// PermissiveTypeMatchingOption toggles permissive object decoding.
func PermissiveTypeMatchingOption(allow bool) CodecOption {
	return func(c *SerializationConfig) {
		c.AllowPermissiveTypeMatching = allow
	}
}

// Element counts of the outer array, per message kind.
const (
	invocationLength       = 5
	streamInvocationLength = 5
	streamItemLength       = 4
	completionLength       = 4
	completionResultLength = 5
	cancelInvocationLength = 3
	pingLength             = 2
)

// Codec maps hub messages to and from their MessagePack payloads.
// A Codec holds no mutable state and may be used concurrently.
type Codec struct {
	config SerializationConfig
}

// NewCodec returns a codec using map-encoded objects and permissive type
// matching unless overridden by opts.
func NewCodec(opts ...CodecOption) (*Codec, error) {
	config := SerializationConfig{
		ObjectEncoding:              MapOfNamedFields,
		AllowPermissiveTypeMatching: true,
	}
	for _, o := range opts {
		o(&config)
	}

	if config.ObjectEncoding != MapOfNamedFields {
		return nil, ErrUnsupportedObjectEncoding
	}

	return &Codec{config: config}, nil
}

// Config returns a copy of the codec's serialization configuration.
func (c *Codec) Config() SerializationConfig {
	return c.config
}

// Decode decodes one frame payload. Structural problems are returned as
// *FormatError. Argument binding problems are not errors: they are captured
// in the Arguments of the returned invocation.
func (c *Codec) Decode(payload []byte, binder Binder) (Message, error) {
	dec := c.newDecoder(payload)

	// The element count only positions the reader; the message type decides
	// how many fields follow.
	if _, err := dec.DecodeArrayLen(); err != nil {
		return nil, newFormatError("message length", err)
	}

	headers, err := readHeaders(dec)
	if err != nil {
		return nil, err
	}

	tag, err := readInt(dec, "message type")
	if err != nil {
		return nil, err
	}

	switch MessageType(tag) {
	case InvocationType:
		id, target, args, err := c.decodeCall(dec, binder)
		if err != nil {
			return nil, err
		}
		return &InvocationMessage{Headers: headers, InvocationID: id, Target: target, Arguments: args}, nil
	case StreamInvocationType:
		id, target, args, err := c.decodeCall(dec, binder)
		if err != nil {
			return nil, err
		}
		return &StreamInvocationMessage{Headers: headers, InvocationID: id, Target: target, Arguments: args}, nil
	case StreamItemType:
		return c.decodeStreamItem(dec, headers, binder)
	case CompletionType:
		return c.decodeCompletion(dec, headers, binder)
	case CancelInvocationType:
		id, err := readString(dec, "invocation id")
		if err != nil {
			return nil, err
		}
		return &CancelInvocationMessage{Headers: headers, InvocationID: id}, nil
	case PingType:
		return Ping, nil
	default:
		return nil, formatErrorf("message type", "invalid message type: %d", tag)
	}
}

// decodeCall reads the fields shared by Invocation and StreamInvocation.
// A nil id decodes as the empty string, which is how an absent id is represented.
func (c *Codec) decodeCall(dec *msgpack.Decoder, binder Binder) (string, string, Arguments, error) {
	id, err := readString(dec, "invocation id")
	if err != nil {
		return "", "", Arguments{}, err
	}
	target, err := readString(dec, "target")
	if err != nil {
		return "", "", Arguments{}, err
	}

	types, err := binder.ParameterTypes(target)
	if err != nil {
		return id, target, BindingFailed(&BindingError{Target: target, Err: err}), nil
	}
	return id, target, bindArguments(dec, target, types), nil
}

func (c *Codec) decodeStreamItem(dec *msgpack.Decoder, headers Headers, binder Binder) (Message, error) {
	id, err := readString(dec, "invocation id")
	if err != nil {
		return nil, err
	}

	typ, err := binder.ReturnType(id)
	if err != nil {
		return nil, newFormatError("stream item type", err)
	}
	item, err := readValue(dec, typ)
	if err != nil {
		return nil, newFormatError("stream item", err)
	}

	return &StreamItemMessage{Headers: headers, InvocationID: id, Item: item}, nil
}

func (c *Codec) decodeCompletion(dec *msgpack.Decoder, headers Headers, binder Binder) (Message, error) {
	id, err := readString(dec, "invocation id")
	if err != nil {
		return nil, err
	}
	kind, err := readInt(dec, "result kind")
	if err != nil {
		return nil, err
	}

	msg := &CompletionMessage{Headers: headers, InvocationID: id, kind: ResultKind(kind)}
	switch msg.kind {
	case ErrorResult:
		if msg.Error, err = readString(dec, "completion error"); err != nil {
			return nil, err
		}
	case NonVoidResult:
		typ, err := binder.ReturnType(id)
		if err != nil {
			return nil, newFormatError("completion result type", err)
		}
		if msg.Result, err = readValue(dec, typ); err != nil {
			return nil, newFormatError("completion result", err)
		}
		msg.HasResult = true
	case VoidResult:
	default:
		return nil, formatErrorf("result kind", "invalid result kind: %d", kind)
	}
	return msg, nil
}

// Encode encodes msg into a frame payload. A nil message, typed or not,
// is a FormatError.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	if isNilMessage(msg) {
		return nil, formatErrorf("message type", "cannot encode nil %T message", msg)
	}

	var buf bytes.Buffer
	enc := c.newEncoder(&buf)

	var err error
	switch m := msg.(type) {
	case *InvocationMessage:
		err = c.encodeCall(enc, InvocationType, invocationLength, m.Headers, m.InvocationID, m.Target, m.Arguments)
	case *StreamInvocationMessage:
		err = c.encodeCall(enc, StreamInvocationType, streamInvocationLength, m.Headers, m.InvocationID, m.Target, m.Arguments)
	case *StreamItemMessage:
		err = c.encodeStreamItem(enc, m)
	case *CompletionMessage:
		err = c.encodeCompletion(enc, m)
	case *CancelInvocationMessage:
		err = c.encodeCancelInvocation(enc, m)
	case *PingMessage:
		err = writePrefix(enc, pingLength, EmptyHeaders, PingType)
	default:
		return nil, formatErrorf("message type", "unexpected message type: %T", msg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s message", msg.Type())
	}

	return buf.Bytes(), nil
}

func isNilMessage(msg Message) bool {
	if msg == nil {
		return true
	}
	v := reflect.ValueOf(msg)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func writePrefix(enc *msgpack.Encoder, length int, headers Headers, typ MessageType) error {
	if err := enc.EncodeArrayLen(length); err != nil {
		return err
	}
	if err := writeHeaders(enc, headers); err != nil {
		return err
	}
	return enc.EncodeInt(int64(typ))
}

// encodeCall writes Invocation and StreamInvocation. Only invocations
// normalize an empty id to nil; stream invocations write the id verbatim.
func (c *Codec) encodeCall(enc *msgpack.Encoder, typ MessageType, length int, headers Headers, id, target string, args Arguments) error {
	if err := writePrefix(enc, length, headers, typ); err != nil {
		return err
	}

	var err error
	if typ == InvocationType {
		err = writeInvocationID(enc, id)
	} else {
		err = enc.EncodeString(id)
	}
	if err != nil {
		return err
	}

	if err := enc.EncodeString(target); err != nil {
		return err
	}
	return writeArguments(enc, args)
}

func (c *Codec) encodeStreamItem(enc *msgpack.Encoder, m *StreamItemMessage) error {
	if err := writePrefix(enc, streamItemLength, m.Headers, StreamItemType); err != nil {
		return err
	}
	if err := enc.EncodeString(m.InvocationID); err != nil {
		return err
	}
	return enc.Encode(m.Item)
}

func (c *Codec) encodeCompletion(enc *msgpack.Encoder, m *CompletionMessage) error {
	kind := m.ResultKind()
	length := completionLength
	if kind == NonVoidResult {
		length = completionResultLength
	}

	if err := writePrefix(enc, length, m.Headers, CompletionType); err != nil {
		return err
	}
	if err := enc.EncodeString(m.InvocationID); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(kind)); err != nil {
		return err
	}

	switch kind {
	case ErrorResult:
		return enc.EncodeString(m.Error)
	case NonVoidResult:
		return enc.Encode(m.Result)
	}
	return nil
}

func (c *Codec) encodeCancelInvocation(enc *msgpack.Encoder, m *CancelInvocationMessage) error {
	if err := writePrefix(enc, cancelInvocationLength, m.Headers, CancelInvocationType); err != nil {
		return err
	}
	return enc.EncodeString(m.InvocationID)
}
