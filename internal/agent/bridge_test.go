package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeStream struct {
	events []Event
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (Event, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeInvoker struct {
	stream    *fakeStream
	err       error
	calls     int
	lastInput Input
}

func (f *fakeInvoker) Invoke(_ context.Context, in Input) (Stream, error) {
	f.calls++
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type fakeTraceStore struct {
	err  error
	keys []string
}

func (s *fakeTraceStore) PutTrace(_ context.Context, key string, _ []byte) error {
	s.keys = append(s.keys, key)
	return s.err
}

func TestRunAccumulatesChunksInOrder(t *testing.T) {
	inv := &fakeInvoker{stream: &fakeStream{events: []Event{
		ChunkEvent{Bytes: []byte("Hello")},
		ChunkEvent{Bytes: []byte(", ")},
		ChunkEvent{Bytes: []byte("coach!")},
	}}}
	b := NewBridge(inv, nil, nil)

	got, err := b.Run(context.Background(), Request{Prompt: "hi", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "Hello, coach!" {
		t.Errorf("completion = %q, want %q", got, "Hello, coach!")
	}
	if !inv.stream.closed {
		t.Error("expected stream to be closed")
	}
}

func TestRunRejectsMissingInputWithoutTransportCall(t *testing.T) {
	inv := &fakeInvoker{stream: &fakeStream{}}
	b := NewBridge(inv, nil, nil)

	if _, err := b.Run(context.Background(), Request{SessionID: "s-1"}); !errors.Is(err, ErrMissingPrompt) {
		t.Errorf("err = %v, want ErrMissingPrompt", err)
	}
	if _, err := b.Run(context.Background(), Request{Prompt: "hi"}); !errors.Is(err, ErrMissingSessionID) {
		t.Errorf("err = %v, want ErrMissingSessionID", err)
	}
	if inv.calls != 0 {
		t.Errorf("invoker calls = %d, want 0", inv.calls)
	}
}

func TestRunEmptyCompletionIsValid(t *testing.T) {
	inv := &fakeInvoker{stream: &fakeStream{}}
	b := NewBridge(inv, nil, nil)

	got, err := b.Run(context.Background(), Request{Prompt: "hi", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "" {
		t.Errorf("completion = %q, want empty", got)
	}
}

func TestRunTraceFailureDoesNotLoseCompletion(t *testing.T) {
	traces := &fakeTraceStore{err: errors.New("bucket unavailable")}
	inv := &fakeInvoker{stream: &fakeStream{events: []Event{
		ChunkEvent{Bytes: []byte("part one ")},
		TraceEvent{Payload: json.RawMessage(`{"step":1}`)},
		ChunkEvent{Bytes: []byte("part two")},
		TraceEvent{Payload: json.RawMessage(`{"step":2}`)},
	}}}
	b := NewBridge(inv, traces, nil)

	got, err := b.Run(context.Background(), Request{Prompt: "hi", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "part one part two" {
		t.Errorf("completion = %q, want %q", got, "part one part two")
	}
	if len(traces.keys) != 2 {
		t.Fatalf("trace writes = %d, want 2", len(traces.keys))
	}
	for _, key := range traces.keys {
		if !strings.HasPrefix(key, "trace/") {
			t.Errorf("trace key %q not under trace/ prefix", key)
		}
	}
}

func TestRunExceptionAbortsAndDiscardsPartialContent(t *testing.T) {
	kinds := []ExceptionKind{ExceptionThrottling, ExceptionValidation, ExceptionInternalServer}
	for _, kind := range kinds {
		inv := &fakeInvoker{stream: &fakeStream{events: []Event{
			ChunkEvent{Bytes: []byte("partial text ")},
			ExceptionEvent{Kind: kind, Message: "boom"},
			ChunkEvent{Bytes: []byte("never read")},
		}}}
		b := NewBridge(inv, nil, nil)

		got, err := b.Run(context.Background(), Request{Prompt: "hi", SessionID: "s-1"})
		if got != "" {
			t.Errorf("kind %s: partial content returned: %q", kind, got)
		}

		var exc *StreamException
		if !errors.As(err, &exc) {
			t.Fatalf("kind %s: err = %v, want StreamException", kind, err)
		}
		if exc.Kind != kind {
			t.Errorf("exception kind = %s, want %s", exc.Kind, kind)
		}
		if exc.Message != "boom" {
			t.Errorf("exception message = %q, want boom", exc.Message)
		}
	}
}

func TestRunNormalizesTransportErrors(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("dial tcp: connection refused")}
	b := NewBridge(inv, nil, nil)

	_, err := b.Run(context.Background(), Request{Prompt: "hi", SessionID: "s-1"})

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("err = %v, want InvocationError", err)
	}
	if !strings.Contains(invErr.Message, "connection refused") {
		t.Errorf("message %q does not carry original error message", invErr.Message)
	}
}

func TestRunNormalizesMidStreamTransportErrors(t *testing.T) {
	inv := &fakeInvoker{stream: &fakeStream{
		events: []Event{ChunkEvent{Bytes: []byte("partial")}},
		err:    errors.New("unexpected EOF"),
	}}
	b := NewBridge(inv, nil, nil)

	_, err := b.Run(context.Background(), Request{Prompt: "hi", SessionID: "s-1"})

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("err = %v, want InvocationError", err)
	}
}

func TestSessionFilesNamesFromFinalPathSegment(t *testing.T) {
	files := sessionFiles([]string{
		"s3://sim-files/scenarios/7/briefing.pdf",
		"https://store.example.com/docs/notes.txt?version=2",
		"",
	})

	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files[0].Name != "briefing.pdf" {
		t.Errorf("name = %q, want briefing.pdf", files[0].Name)
	}
	if files[0].URI != "s3://sim-files/scenarios/7/briefing.pdf" {
		t.Errorf("uri = %q", files[0].URI)
	}
	if files[1].Name != "notes.txt" {
		t.Errorf("name = %q, want notes.txt", files[1].Name)
	}
}

func TestRunPassesSessionAndFilesToTransport(t *testing.T) {
	inv := &fakeInvoker{stream: &fakeStream{}}
	b := NewBridge(inv, nil, nil)

	_, err := b.Run(context.Background(), Request{
		SystemContext: "you are a coach",
		Prompt:        "hi",
		SessionID:     "s-42",
		FileURLs:      []string{"s3://bucket/k/file.pdf"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	in := inv.lastInput
	if in.SessionID != "s-42" {
		t.Errorf("session id = %q, want s-42", in.SessionID)
	}
	if !in.EnableTrace {
		t.Error("expected trace to be enabled")
	}
	if len(in.Files) != 1 || in.Files[0].Name != "file.pdf" {
		t.Errorf("files = %+v, want one file.pdf", in.Files)
	}
}
