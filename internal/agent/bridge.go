package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"coachsim/internal/metrics"
)

// Validation errors returned before any transport call is made.
var (
	ErrMissingPrompt    = errors.New("prompt is required")
	ErrMissingSessionID = errors.New("sessionId is required")
)

const tracePrefix = "trace/"

// Request is one run-prompt call as seen by controllers.
type Request struct {
	SystemContext string
	Prompt        string
	SessionID     string
	FileURLs      []string
	ActionGroups  []string
}

// Bridge accumulates a streaming agent completion into its final text.
// Single-attempt per call: throttling and other stream exceptions are not
// retried here; callers may retry at a higher level.
type Bridge struct {
	invoker Invoker
	traces  TraceStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewBridge constructs the bridge. traces may be nil to disable the trace
// side-channel entirely.
func NewBridge(invoker Invoker, traces TraceStore, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		invoker: invoker,
		traces:  traces,
		logger:  logger,
		now:     time.Now,
	}
}

// Run validates the request, issues the streaming invocation and assembles
// the completion text from the event stream. An empty completion is valid.
func (b *Bridge) Run(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrMissingPrompt
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return "", ErrMissingSessionID
	}

	log := b.logger.With(slog.String("session_id", req.SessionID))

	in := Input{
		SessionID:     req.SessionID,
		SystemContext: req.SystemContext,
		Prompt:        req.Prompt,
		Files:         sessionFiles(req.FileURLs),
		ActionGroups:  req.ActionGroups,
		EnableTrace:   true,
	}

	stream, err := b.invoker.Invoke(ctx, in)
	if err != nil {
		metrics.AgentInvocation("transport_error")
		log.Error("agent invocation failed", slog.Any("error", err))
		return "", normalizeTransportError(err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			metrics.AgentInvocation("transport_error")
			log.Error("agent stream failed", slog.Any("error", err))
			return "", normalizeTransportError(err)
		}

		switch e := ev.(type) {
		case ChunkEvent:
			sb.Write(e.Bytes)
		case TraceEvent:
			b.persistTrace(ctx, log, e.Payload)
		case ExceptionEvent:
			// Partial content is discarded, not returned.
			metrics.AgentInvocation(string(e.Kind))
			log.Error("agent stream exception",
				slog.String("kind", string(e.Kind)),
				slog.String("message", e.Message),
			)
			return "", &StreamException{Kind: e.Kind, Message: e.Message}
		}
	}

	completion := sb.String()
	if completion == "" {
		log.Warn("agent returned empty completion")
	}
	metrics.AgentInvocation("ok")
	return completion, nil
}

// persistTrace writes a trace payload to object storage. Trace persistence is
// best-effort diagnostics: failures are logged and the stream continues.
func (b *Bridge) persistTrace(ctx context.Context, log *slog.Logger, payload []byte) {
	if b.traces == nil {
		return
	}
	key := fmt.Sprintf("%s%d-%s.json", tracePrefix, b.now().UnixMilli(), uuid.NewString())
	if err := b.traces.PutTrace(ctx, key, payload); err != nil {
		log.Warn("persist trace failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

// sessionFiles resolves file URLs to session input files. The file name is
// the final path segment of the URL.
func sessionFiles(urls []string) []InputFile {
	if len(urls) == 0 {
		return nil
	}
	files := make([]InputFile, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name := path.Base(raw)
		if u, err := url.Parse(raw); err == nil && u.Path != "" {
			name = path.Base(u.Path)
		}
		files = append(files, InputFile{Name: name, URI: raw})
	}
	return files
}

func normalizeTransportError(err error) error {
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr
	}
	return &InvocationError{
		Name:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}
