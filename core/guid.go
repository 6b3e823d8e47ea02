package core

import (
	"encoding/binary"
	"fmt"
)

// GuidPrefix identifies a Participant within the domain. It is the first
// 12 octets of every GUID owned by that participant's entities.
type GuidPrefix [12]byte

func (p GuidPrefix) String() string {
	return fmt.Sprintf("%x", [12]byte(p))
}

// EntityId identifies an entity (writer, reader, participant) within a
// GuidPrefix. The low octet carries the entity kind.
type EntityId [4]byte

// EntityIdUnknown is the sentinel used in submessages that address "all
// entities", eg. a HEARTBEAT or ACKNACK that targets every matched proxy.
var EntityIdUnknown = EntityId{0, 0, 0, 0}

// Entity kind octets, RTPS 9.3.1.2.
const (
	EntityKindUserWriterNoKey  byte = 0x03
	EntityKindUserWriterKey    byte = 0x02
	EntityKindUserReaderNoKey  byte = 0x04
	EntityKindUserReaderKey    byte = 0x07
	EntityKindBuiltinParticipant byte = 0xc1
)

func (e EntityId) String() string {
	return fmt.Sprintf("%x", [4]byte(e))
}

func (e EntityId) IsUnknown() bool {
	return e == EntityIdUnknown
}

// Guid is a GuidPrefix + EntityId pair, globally unique across a domain.
type Guid struct {
	Prefix GuidPrefix
	Entity EntityId
}

func (g Guid) String() string {
	return g.Prefix.String() + ":" + g.Entity.String()
}

func (g Guid) IsUnknown() bool {
	return g.Entity.IsUnknown()
}

// NewEntityId builds an EntityId from a 3-octet key counter and a kind octet,
// mirroring how RTPS builtin/user entity ids are minted: the first three
// octets distinguish entities from the same participant, the last octet
// names the kind.
func NewEntityId(key uint32, kind byte) EntityId {
	var e EntityId
	binary.BigEndian.PutUint32(e[:], key<<8)
	e[3] = kind
	return e
}
