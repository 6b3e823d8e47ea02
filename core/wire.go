package core

import (
	"encoding/binary"
	"time"

	"github.com/valyala/bytebufferpool"
)

// RTPS header magic and the protocol version/vendor this core emits.
var RtpsMagic = [4]byte{'R', 'T', 'P', 'S'}

const (
	ProtocolVersionMajor = 2
	ProtocolVersionMinor = 3
)

var VendorId = [2]byte{0x01, 0xff} // unregistered vendor id for this core

// SubmessageKind identifies the RTPS submessage types this core parses and
// emits.
type SubmessageKind byte

const (
	SubmessageAckNack  SubmessageKind = 0x06
	SubmessageHeartbeat SubmessageKind = 0x07
	SubmessageGap      SubmessageKind = 0x08
	SubmessageInfoTs   SubmessageKind = 0x09
	SubmessageInfoDst  SubmessageKind = 0x0e
	SubmessageData     SubmessageKind = 0x15
)

const (
	flagEndianness byte = 0x01
)

// Header is the 20-octet RTPS message header.
type Header struct {
	VersionMajor, VersionMinor byte
	VendorId                   [2]byte
	SourceGuidPrefix           GuidPrefix
}

// EncodeHeader writes the 20-octet RTPS header to buf.
func EncodeHeader(buf *bytebufferpool.ByteBuffer, h Header) {
	buf.Write(RtpsMagic[:])
	buf.WriteByte(h.VersionMajor)
	buf.WriteByte(h.VersionMinor)
	buf.Write(h.VendorId[:])
	buf.Write(h.SourceGuidPrefix[:])
}

// DecodeHeader parses the leading 20 octets of an RTPS message. It returns
// a *ProtocolError, not a panic, for anything shorter than 20 octets or
// carrying the wrong magic -- MessageReceiver treats this as a
// datagram-scoped fault, never participant-fatal.
func DecodeHeader(b []byte) (Header, []byte, error) {
	if len(b) < 20 {
		return Header{}, nil, &ProtocolError{Context: "header", Reason: "datagram shorter than 20 octets"}
	}
	if string(b[0:4]) != string(RtpsMagic[:]) {
		return Header{}, nil, &ProtocolError{Context: "header", Reason: "bad magic"}
	}
	var h Header
	h.VersionMajor, h.VersionMinor = b[4], b[5]
	copy(h.VendorId[:], b[6:8])
	copy(h.SourceGuidPrefix[:], b[8:20])
	return h, b[20:], nil
}

// SubmessageHeader is the 4-octet header preceding every submessage body.
type SubmessageHeader struct {
	Kind              SubmessageKind
	Flags             byte
	OctetsToNextHeader uint16
}

func (h SubmessageHeader) BigEndian() bool {
	return h.Flags&flagEndianness == 0
}

func byteOrder(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DecodeSubmessageHeader parses one 4-octet submessage header.
func DecodeSubmessageHeader(b []byte) (SubmessageHeader, error) {
	if len(b) < 4 {
		return SubmessageHeader{}, &ProtocolError{Context: "submessage header", Reason: "fewer than 4 octets remaining"}
	}
	h := SubmessageHeader{Kind: SubmessageKind(b[0]), Flags: b[1]}
	h.OctetsToNextHeader = byteOrder(h.BigEndian()).Uint16(b[2:4])
	return h, nil
}

// EncodeSubmessageHeader writes a 4-octet submessage header, big-endian.
func EncodeSubmessageHeader(buf *bytebufferpool.ByteBuffer, kind SubmessageKind, flags byte, octets uint16) {
	buf.WriteByte(byte(kind))
	buf.WriteByte(flags)
	var lb [2]byte
	binary.BigEndian.PutUint16(lb[:], octets)
	buf.Write(lb[:])
}

// InfoTimestamp is carried by an INFO_TS submessage, establishing the
// source timestamp for subsequent DATA submessages in the same message.
type InfoTimestamp struct {
	Time time.Time
}

// AckNackSubmessage requests retransmission (Requested) and/or
// acknowledges receipt (via the base of the set) of a writer's changes.
type AckNackSubmessage struct {
	ReaderId EntityId
	WriterId EntityId
	Reader   SequenceNumberSet
	Count    int32
}

// HeartbeatSubmessage announces the range of sequence numbers currently
// available in a writer's HistoryCache.
type HeartbeatSubmessage struct {
	ReaderId       EntityId
	WriterId       EntityId
	FirstAvailable SequenceNumber
	LastAvailable  SequenceNumber
	Count          int32
	Final          bool
}

// GapSubmessage announces that a range/set of sequence numbers will never
// be delivered to the targeted reader.
type GapSubmessage struct {
	ReaderId  EntityId
	WriterId  EntityId
	GapStart  SequenceNumber
	GapList   SequenceNumberSet
}

// DataSubmessage carries one serialized sample.
type DataSubmessage struct {
	ReaderId       EntityId
	WriterId       EntityId
	SequenceNumber SequenceNumber
	Kind           ChangeKind
	Payload        []byte
}
