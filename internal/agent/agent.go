// Package agent bridges HTTP handlers to remote streaming generative-AI
// agents. Vendor transports are hidden behind the narrow Stream/Invoker
// interfaces so the event-classification logic stays unit-testable against a
// fake producer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExceptionKind classifies exception events raised inside an agent stream.
type ExceptionKind string

const (
	ExceptionInternalServer ExceptionKind = "internal_server"
	ExceptionValidation     ExceptionKind = "validation"
	ExceptionThrottling     ExceptionKind = "throttling"
)

// Event is one element of an agent response stream.
type Event interface {
	event()
}

// ChunkEvent carries a fragment of the completion text as raw UTF-8 bytes.
type ChunkEvent struct {
	Bytes []byte
}

// TraceEvent carries a diagnostic payload describing the agent's internal
// reasoning steps. Persisted best-effort; never part of the completion.
type TraceEvent struct {
	Payload json.RawMessage
}

// ExceptionEvent signals the remote agent aborted the stream.
type ExceptionEvent struct {
	Kind    ExceptionKind
	Message string
}

func (ChunkEvent) event()     {}
func (TraceEvent) event()     {}
func (ExceptionEvent) event() {}

// Stream yields agent events strictly in delivery order. Recv returns io.EOF
// once the stream has completed normally.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// InputFile attaches externally stored content to the agent session.
type InputFile struct {
	// Name is the file name presented to the agent, taken from the final
	// path segment of the source URL.
	Name string
	// URI is the object-storage location of the content.
	URI string
}

// Input describes one streaming agent invocation.
type Input struct {
	SessionID     string
	SystemContext string
	Prompt        string
	Files         []InputFile
	ActionGroups  []string
	EnableTrace   bool
}

// Invoker issues a single streaming invocation against a remote agent.
type Invoker interface {
	Invoke(ctx context.Context, in Input) (Stream, error)
}

// TraceStore persists trace payloads out of band.
type TraceStore interface {
	PutTrace(ctx context.Context, key string, payload []byte) error
}

// StreamException is returned when the remote agent emitted an exception
// event mid-stream. Content accumulated before the event is discarded.
type StreamException struct {
	Kind    ExceptionKind
	Message string
}

func (e *StreamException) Error() string {
	return fmt.Sprintf("agent stream exception (%s): %s", e.Kind, e.Message)
}

// InvocationError is the single error shape surfaced for transport-level
// failures. Raw vendor error types never reach callers; only the original
// error's name and message are carried.
type InvocationError struct {
	Name    string
	Message string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent invocation failed: %s: %s", e.Name, e.Message)
}
