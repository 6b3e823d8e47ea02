package core

import (
	"time"

	"github.com/rs/zerolog"
)

// ReceiverContext carries the per-message state a MessageReceiver accumulates
// while walking one datagram's submessages: the peer's GuidPrefix (set by
// the RTPS header and possibly overridden by INFO_SRC, not modeled here
// since this core only speaks UDPv4/v6 unicast+multicast), the destination
// GuidPrefix (set by INFO_DST), current timestamp (set by INFO_TS), and
// submessage endianness.
type ReceiverContext struct {
	SourceGuidPrefix GuidPrefix
	DestGuidPrefix   GuidPrefix
	Timestamp        time.Time
	BigEndian        bool
}

// EntityDispatch resolves the writer/reader entity a submessage targets.
// The Participant implements this by looking up its StatefulWriter/
// StatefulReader tables; MessageReceiver itself holds no entity state.
type EntityDispatch interface {
	DispatchAckNack(ctx ReceiverContext, m AckNackSubmessage)
	DispatchHeartbeat(ctx ReceiverContext, m HeartbeatSubmessage)
	DispatchGap(ctx ReceiverContext, m GapSubmessage)
	DispatchData(ctx ReceiverContext, m DataSubmessage)
}

// MessageReceiver parses one RTPS message (== one UDP datagram) into its
// constituent submessages, updating ReceiverContext as it goes and
// dispatching recognized submessage kinds. An unrecognized kind is skipped
// by OctetsToNextHeader, per RTPS 8.3.3.2 -- forward wire compatibility
// means new submessage kinds must never be treated as a parse failure. A
// malformed submessage body produces a *ProtocolError that aborts the rest
// of that datagram: submessages already dispatched stay dispatched, the
// remaining ones are dropped, and the next datagram is processed normally.
type MessageReceiver struct {
	zerolog.Logger
	Dispatch EntityDispatch
}

func NewMessageReceiver(dispatch EntityDispatch, logger zerolog.Logger) *MessageReceiver {
	return &MessageReceiver{Logger: logger, Dispatch: dispatch}
}

// Process parses and dispatches every submessage in payload.
func (r *MessageReceiver) Process(payload []byte) error {
	header, rest, err := DecodeHeader(payload)
	if err != nil {
		return err
	}
	ctx := ReceiverContext{SourceGuidPrefix: header.SourceGuidPrefix, BigEndian: true}

	for len(rest) > 0 {
		sh, err := DecodeSubmessageHeader(rest)
		if err != nil {
			r.Debug().Err(err).Msg("malformed submessage header, stopping this datagram")
			return err
		}
		ctx.BigEndian = sh.BigEndian()

		body := rest[4:]
		next := int(sh.OctetsToNextHeader)
		if next > len(body) {
			r.Debug().Str("kind", "unknown").Msg("submessage claims more octets than remain, stopping this datagram")
			return &ProtocolError{Context: "submessage body", Reason: "octets-to-next-header exceeds datagram"}
		}
		var frame []byte
		if next == 0 {
			frame = body // last submessage in message, consumes the rest
			rest = nil
		} else {
			frame = body[:next]
			rest = body[next:]
		}

		if err := r.dispatchOne(&ctx, sh.Kind, frame); err != nil {
			r.Debug().Err(err).Str("kind", zeroHex(byte(sh.Kind))).Msg("submessage rejected, stopping this datagram")
			return err
		}
	}
	return nil
}

func zeroHex(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0xf]})
}

func (r *MessageReceiver) dispatchOne(ctx *ReceiverContext, kind SubmessageKind, frame []byte) error {
	switch kind {
	case SubmessageInfoTs:
		ts, err := decodeInfoTs(frame, ctx.BigEndian)
		if err != nil {
			return err
		}
		ctx.Timestamp = ts.Time
		return nil
	case SubmessageInfoDst:
		if len(frame) < 12 {
			return &ProtocolError{Context: "INFO_DST", Reason: "too short"}
		}
		copy(ctx.DestGuidPrefix[:], frame[:12])
		return nil
	case SubmessageAckNack:
		m, err := decodeAckNack(frame, ctx.BigEndian)
		if err != nil {
			return err
		}
		r.Dispatch.DispatchAckNack(*ctx, m)
		return nil
	case SubmessageHeartbeat:
		m, err := decodeHeartbeat(frame, ctx.BigEndian)
		if err != nil {
			return err
		}
		r.Dispatch.DispatchHeartbeat(*ctx, m)
		return nil
	case SubmessageGap:
		m, err := decodeGap(frame, ctx.BigEndian)
		if err != nil {
			return err
		}
		r.Dispatch.DispatchGap(*ctx, m)
		return nil
	case SubmessageData:
		m, err := decodeData(frame, ctx.BigEndian)
		if err != nil {
			return err
		}
		r.Dispatch.DispatchData(*ctx, m)
		return nil
	default:
		return nil // unknown kind, already skipped by length
	}
}
