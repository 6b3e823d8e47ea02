package core

import (
	"encoding/binary"
	"time"

	"github.com/valyala/bytebufferpool"
)

// This file holds the submessage body encode/decode helpers used by
// MessageReceiver (decode) and StatefulWriter/StatefulReader (encode).
// Bodies are read/written directly against byte order derived from the
// submessage's own endianness flag, per RTPS 9.4.

func readSeqNum(b []byte, bo binary.ByteOrder) SequenceNumber {
	high := bo.Uint32(b[0:4])
	low := bo.Uint32(b[4:8])
	return SequenceNumber(int64(high)<<32 | int64(low))
}

func writeSeqNum(buf *bytebufferpool.ByteBuffer, sn SequenceNumber) {
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(int64(sn)>>32))
	binary.BigEndian.PutUint32(b[4:8], uint32(int64(sn)))
	buf.Write(b[:])
}

func readEntityId(b []byte) EntityId {
	var e EntityId
	copy(e[:], b[:4])
	return e
}

func writeEntityId(buf *bytebufferpool.ByteBuffer, e EntityId) {
	buf.Write(e[:])
}

func decodeInfoTs(b []byte, bigEndian bool) (InfoTimestamp, error) {
	if len(b) < 8 {
		return InfoTimestamp{}, &ProtocolError{Context: "INFO_TS", Reason: "too short"}
	}
	bo := byteOrder(bigEndian)
	sec := int32(bo.Uint32(b[0:4]))
	frac := bo.Uint32(b[4:8])
	nsec := int64(frac) * int64(time.Second) / (1 << 32)
	return InfoTimestamp{Time: time.Unix(int64(sec), nsec).UTC()}, nil
}

func decodeSeqNumSet(b []byte, bo binary.ByteOrder) (SequenceNumberSet, []byte, error) {
	if len(b) < 12 {
		return SequenceNumberSet{}, nil, &ProtocolError{Context: "SequenceNumberSet", Reason: "too short"}
	}
	base := readSeqNum(b, bo)
	numBits := int(bo.Uint32(b[8:12]))
	rest := b[12:]
	numWords := (numBits + 31) / 32
	if len(rest) < numWords*4 {
		return SequenceNumberSet{}, nil, &ProtocolError{Context: "SequenceNumberSet", Reason: "bitmap truncated"}
	}
	bitmap := make([]bool, numBits)
	for i := 0; i < numBits; i++ {
		word := bo.Uint32(rest[(i/32)*4 : (i/32)*4+4])
		bit := uint(31 - i%32)
		if word&(1<<bit) != 0 {
			bitmap[i] = true
		}
	}
	return SequenceNumberSet{Base: base, Bitmap: bitmap}, rest[numWords*4:], nil
}

func writeSeqNumSet(buf *bytebufferpool.ByteBuffer, set SequenceNumberSet) {
	writeSeqNum(buf, set.Base)
	numBits := len(set.Bitmap)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(numBits))
	buf.Write(lb[:])
	numWords := (numBits + 31) / 32
	words := make([]uint32, numWords)
	for i, set := range set.Bitmap {
		if set {
			words[i/32] |= 1 << uint(31-i%32)
		}
	}
	for _, w := range words {
		var wb [4]byte
		binary.BigEndian.PutUint32(wb[:], w)
		buf.Write(wb[:])
	}
}

func decodeAckNack(b []byte, bigEndian bool) (AckNackSubmessage, error) {
	if len(b) < 8 {
		return AckNackSubmessage{}, &ProtocolError{Context: "ACKNACK", Reason: "too short"}
	}
	bo := byteOrder(bigEndian)
	readerId := readEntityId(b[0:4])
	writerId := readEntityId(b[4:8])
	set, rest, err := decodeSeqNumSet(b[8:], bo)
	if err != nil {
		return AckNackSubmessage{}, err
	}
	if len(rest) < 4 {
		return AckNackSubmessage{}, &ProtocolError{Context: "ACKNACK", Reason: "missing count"}
	}
	count := int32(bo.Uint32(rest[0:4]))
	return AckNackSubmessage{ReaderId: readerId, WriterId: writerId, Reader: set, Count: count}, nil
}

func EncodeAckNack(buf *bytebufferpool.ByteBuffer, m AckNackSubmessage) {
	writeEntityId(buf, m.ReaderId)
	writeEntityId(buf, m.WriterId)
	writeSeqNumSet(buf, m.Reader)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], uint32(m.Count))
	buf.Write(cb[:])
}

func decodeHeartbeat(b []byte, bigEndian bool) (HeartbeatSubmessage, error) {
	if len(b) < 28 {
		return HeartbeatSubmessage{}, &ProtocolError{Context: "HEARTBEAT", Reason: "too short"}
	}
	bo := byteOrder(bigEndian)
	readerId := readEntityId(b[0:4])
	writerId := readEntityId(b[4:8])
	first := readSeqNum(b[8:16], bo)
	last := readSeqNum(b[16:24], bo)
	count := int32(bo.Uint32(b[24:28]))
	return HeartbeatSubmessage{ReaderId: readerId, WriterId: writerId, FirstAvailable: first, LastAvailable: last, Count: count}, nil
}

func EncodeHeartbeat(buf *bytebufferpool.ByteBuffer, m HeartbeatSubmessage) {
	writeEntityId(buf, m.ReaderId)
	writeEntityId(buf, m.WriterId)
	writeSeqNum(buf, m.FirstAvailable)
	writeSeqNum(buf, m.LastAvailable)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], uint32(m.Count))
	buf.Write(cb[:])
}

func decodeGap(b []byte, bigEndian bool) (GapSubmessage, error) {
	if len(b) < 16 {
		return GapSubmessage{}, &ProtocolError{Context: "GAP", Reason: "too short"}
	}
	bo := byteOrder(bigEndian)
	readerId := readEntityId(b[0:4])
	writerId := readEntityId(b[4:8])
	start := readSeqNum(b[8:16], bo)
	set, _, err := decodeSeqNumSet(b[16:], bo)
	if err != nil {
		return GapSubmessage{}, err
	}
	return GapSubmessage{ReaderId: readerId, WriterId: writerId, GapStart: start, GapList: set}, nil
}

func EncodeGap(buf *bytebufferpool.ByteBuffer, m GapSubmessage) {
	writeEntityId(buf, m.ReaderId)
	writeEntityId(buf, m.WriterId)
	writeSeqNum(buf, m.GapStart)
	writeSeqNumSet(buf, m.GapList)
}

func decodeData(b []byte, bigEndian bool) (DataSubmessage, error) {
	if len(b) < 20 {
		return DataSubmessage{}, &ProtocolError{Context: "DATA", Reason: "too short"}
	}
	bo := byteOrder(bigEndian)
	// octets [0:2] extraFlags, [2:4] octetsToInlineQos -- not modeled, this
	// core has no inline-QoS support (tracked as an unsupported extension).
	readerId := readEntityId(b[4:8])
	writerId := readEntityId(b[8:12])
	sn := readSeqNum(b[12:20], bo)
	return DataSubmessage{
		ReaderId:       readerId,
		WriterId:       writerId,
		SequenceNumber: sn,
		Kind:           Alive,
		Payload:        b[20:],
	}, nil
}

func EncodeData(buf *bytebufferpool.ByteBuffer, m DataSubmessage) {
	buf.Write([]byte{0, 0, 0, 0}) // extraFlags + octetsToInlineQos, unused
	writeEntityId(buf, m.ReaderId)
	writeEntityId(buf, m.WriterId)
	writeSeqNum(buf, m.SequenceNumber)
	buf.Write(m.Payload)
}
