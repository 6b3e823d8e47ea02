package core

// Codec is the serialization boundary this core consumes but never
// implements: CDR encode/decode and instance-key extraction are left to
// the caller, which supplies a real CDR codec. Nothing in core calls a
// Codec itself: payloads stay opaque byte slices.
type Codec interface {
	Serialize(v any) ([]byte, error)
	Deserialize(b []byte, out any) error
	Key(v any) (InstanceKey, error)
}
