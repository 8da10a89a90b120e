package bus

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	message "github.com/dmweis/hamilton/pkg/flatbuffers/hamilton/message"
)

// Encode frames msg as a finished Envelope buffer.
func Encode(msg *Message) []byte {
	builder := flatbuffers.NewBuilder(64 + len(msg.Topic) + len(msg.Payload))

	topic := builder.CreateString(msg.Topic)
	payload := builder.CreateByteVector(msg.Payload)

	message.EnvelopeStart(builder)
	message.EnvelopeAddTopic(builder, topic)
	message.EnvelopeAddTimestampNs(builder, msg.TimestampNs)
	message.EnvelopeAddContentType(builder, msg.ContentType)
	message.EnvelopeAddPayload(builder, payload)
	message.FinishEnvelopeBuffer(builder, message.EnvelopeEnd(builder))

	return builder.FinishedBytes()
}

// Decode parses an Envelope. The payload is copied so the caller may reuse
// data.
func Decode(data []byte) (msg *Message, err error) {
	// root offset plus the smallest possible vtable
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidEnvelope, len(data))
	}
	root := flatbuffers.GetUOffsetT(data)
	if int(root) >= len(data) {
		return nil, fmt.Errorf("%w: root offset %d out of range", ErrInvalidEnvelope, root)
	}

	// the generated accessors index without bounds checks
	defer func() {
		if r := recover(); r != nil {
			msg = nil
			err = fmt.Errorf("%w: %v", ErrInvalidEnvelope, r)
		}
	}()

	env := message.GetRootAsEnvelope(data, 0)
	topic := string(env.Topic())
	if topic == "" {
		return nil, fmt.Errorf("%w: missing topic", ErrInvalidEnvelope)
	}

	payload := env.PayloadBytes()
	out := make([]byte, len(payload))
	copy(out, payload)

	return &Message{
		Topic:       topic,
		TimestampNs: env.TimestampNs(),
		ContentType: env.ContentType(),
		Payload:     out,
	}, nil
}
