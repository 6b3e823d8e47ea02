package core

import "time"

type ChangeKind int

const (
	Alive ChangeKind = iota
	NotAliveDisposed
	NotAliveUnregistered
)

// CacheChange is an immutable record of one sample written to, or received
// by, a HistoryCache. Once constructed it is never mutated; Writer/Reader
// logic that needs to track per-reader delivery state keeps that state in
// the proxy tables, not on the change itself.
type CacheChange struct {
	WriterGuid     Guid
	SequenceNumber SequenceNumber
	Kind           ChangeKind
	InstanceKey    InstanceKey
	Data           []byte
	SourceTime     time.Time
}

// InstanceKey is the comparable Go representation of a sample's DDS
// instance key, as produced by a Codec's Key method. A HistoryCache needs
// a map key type, so it's resolved to a plain string.
type InstanceKey string
