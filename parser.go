package hub

// Parser decodes every complete frame of a buffer into messages.
type Parser struct {
	codec  *Codec
	frames FrameReader
}

// NewParser returns a parser reading frames with frames and decoding them with codec.
func NewParser(codec *Codec, frames FrameReader) *Parser {
	return &Parser{codec: codec, frames: frames}
}

// ParseAll decodes the complete frames at the front of buf, in order, and
// returns them with the number of bytes they occupied. Trailing bytes of an
// incomplete frame are left for a later call.
//
// A FormatError aborts the whole batch: no messages are returned, and
// consumed counts the bytes up to and including the failing frame.
func (p *Parser) ParseAll(buf []byte, binder Binder) (messages []Message, consumed int, err error) {
	for {
		payload, n, ok, err := p.frames.TryParseFrame(buf[consumed:])
		if err != nil {
			return nil, consumed, err
		}
		if !ok {
			return messages, consumed, nil
		}
		consumed += n

		msg, err := p.codec.Decode(payload, binder)
		if err != nil {
			return nil, consumed, err
		}
		messages = append(messages, msg)
	}
}
