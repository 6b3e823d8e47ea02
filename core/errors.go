package core

import "fmt"

// ConfigurationError reports an invalid or unsupported configuration value
// discovered at participant/endpoint creation time. It is always fatal to
// the creation call that surfaced it.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ProtocolError reports a violation of RTPS wire-format expectations found
// while parsing a datagram or submessage. It is scoped to the offending
// datagram: the MessageReceiver logs it and moves on to the next datagram,
// it never tears down the participant.
type ProtocolError struct {
	Context string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %s", e.Context, e.Reason)
}

// TransportError reports a failure from the underlying Transport
// implementation, eg. a send that could not be queued to the socket.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResourceExhaustion reports that a bounded resource (history depth,
// pending-sample buffer, proxy table) has hit its configured limit.
type ResourceExhaustion struct {
	Resource string
	Limit    int
}

func (e *ResourceExhaustion) Error() string {
	return fmt.Sprintf("resource exhausted: %s (limit %d)", e.Resource, e.Limit)
}
