package hub

import (
	"bytes"
	"io"
	"reflect"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

func (c *Codec) newEncoder(w io.Writer) *msgpack.Encoder {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	enc.UseArrayEncodedStructs(c.config.ObjectEncoding == ArrayOfFields)
	return enc
}

func (c *Codec) newDecoder(payload []byte) *msgpack.Decoder {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields(!c.config.AllowPermissiveTypeMatching)
	return dec
}

func readHeaders(dec *msgpack.Decoder) (Headers, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, newFormatError("headers", err)
	}
	if n <= 0 {
		return EmptyHeaders, nil
	}

	headers := make(Headers, n)
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, newFormatError("header key", err)
		}
		value, err := dec.DecodeString()
		if err != nil {
			return nil, newFormatError("header value", err)
		}
		headers[key] = value
	}
	return headers, nil
}

func writeHeaders(enc *msgpack.Encoder, headers Headers) error {
	if err := enc.EncodeMapLen(len(headers)); err != nil {
		return err
	}
	for key, value := range headers {
		if err := enc.EncodeString(key); err != nil {
			return err
		}
		if err := enc.EncodeString(value); err != nil {
			return err
		}
	}
	return nil
}

func readString(dec *msgpack.Decoder, field string) (string, error) {
	s, err := dec.DecodeString()
	if err != nil {
		return "", newFormatError(field, err)
	}
	return s, nil
}

func readInt(dec *msgpack.Decoder, field string) (int, error) {
	n, err := dec.DecodeInt()
	if err != nil {
		return 0, newFormatError(field, err)
	}
	return n, nil
}

// writeInvocationID writes nil for an absent id.
func writeInvocationID(enc *msgpack.Encoder, id string) error {
	if id == "" {
		return enc.EncodeNil()
	}
	return enc.EncodeString(id)
}

// readValue decodes one value of typ. A nil typ yields a dynamic value.
func readValue(dec *msgpack.Decoder, typ reflect.Type) (any, error) {
	if typ == nil {
		return dec.DecodeInterface()
	}
	ptr := reflect.New(typ)
	if err := dec.DecodeValue(ptr.Elem()); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", typ)
	}
	return ptr.Elem().Interface(), nil
}

// bindArguments never fails past its boundary: every problem is captured
// in the returned Arguments.
func bindArguments(dec *msgpack.Decoder, target string, types []reflect.Type) Arguments {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return BindingFailed(&BindingError{Target: target, Err: errors.Wrap(err, "reading argument count")})
	}
	if n < 0 {
		n = 0
	}
	if n != len(types) {
		return BindingFailed(&BindingError{
			Target: target,
			Err:    errors.Errorf("invocation provides %d argument(s) but target expects %d", n, len(types)),
		})
	}

	var values []any
	if n > 0 {
		values = make([]any, n)
	}
	for i, typ := range types {
		v, err := readValue(dec, typ)
		if err != nil {
			return BindingFailed(&BindingError{Target: target, Err: errors.Wrapf(err, "argument %d", i)})
		}
		values[i] = v
	}
	return BoundArguments(values...)
}

func writeArguments(enc *msgpack.Encoder, args Arguments) error {
	if !args.Bound() {
		return formatErrorf("arguments", "cannot encode unbound arguments: %v", args.Err())
	}
	values := args.Values()
	if err := enc.EncodeArrayLen(len(values)); err != nil {
		return err
	}
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}
