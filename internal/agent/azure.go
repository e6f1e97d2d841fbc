package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const azureAPIVersion = "2024-02-15-preview"

// AzureInvoker calls an Azure OpenAI chat-completions deployment with
// streaming enabled. The deployment API is stateless; the session id is sent
// as the user field for server-side correlation only.
type AzureInvoker struct {
	endpoint   string
	deployment string
	apiKey     string
	httpClient *http.Client
}

// NewAzureInvoker builds the Azure OpenAI transport.
// endpoint is the resource base URL, e.g. "https://myres.openai.azure.com".
func NewAzureInvoker(endpoint, deployment, apiKey string) *AzureInvoker {
	return &AzureInvoker{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		deployment: strings.TrimSpace(deployment),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type azureMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type azureChatRequest struct {
	Messages []azureMessage `json:"messages"`
	Stream   bool           `json:"stream"`
	User     string         `json:"user,omitempty"`
}

type azureChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type azureErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke implements Invoker.
func (a *AzureInvoker) Invoke(ctx context.Context, in Input) (Stream, error) {
	if a.deployment == "" {
		return nil, fmt.Errorf("azure deployment is required")
	}

	messages := make([]azureMessage, 0, 2)
	if strings.TrimSpace(in.SystemContext) != "" {
		messages = append(messages, azureMessage{Role: "system", Content: in.SystemContext})
	}
	messages = append(messages, azureMessage{Role: "user", Content: in.Prompt})

	body, err := json.Marshal(azureChatRequest{
		Messages: messages,
		Stream:   true,
		User:     in.SessionID,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		a.endpoint, a.deployment, azureAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp azureErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		message := errResp.Error.Message
		if message == "" {
			message = resp.Status
		}
		// Error statuses are surfaced as typed exception events so the
		// bridge classifies them the same way as Bedrock stream exceptions.
		return &exceptionStream{event: ExceptionEvent{
			Kind:    classifyAzureStatus(resp.StatusCode),
			Message: message,
		}}, nil
	}

	return &azureStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

func classifyAzureStatus(status int) ExceptionKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ExceptionThrottling
	case status >= 500:
		return ExceptionInternalServer
	default:
		return ExceptionValidation
	}
}

type azureStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// Recv decodes one server-sent-events data line into a chunk event.
func (s *azureStream) Recv() (Event, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return nil, io.EOF
		}

		var chunk azureChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return ChunkEvent{Bytes: []byte(chunk.Choices[0].Delta.Content)}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	s.done = true
	return nil, io.EOF
}

func (s *azureStream) Close() error {
	return s.body.Close()
}

// exceptionStream yields a single exception event and then terminates.
type exceptionStream struct {
	event   ExceptionEvent
	yielded bool
}

func (s *exceptionStream) Recv() (Event, error) {
	if s.yielded {
		return nil, io.EOF
	}
	s.yielded = true
	return s.event, nil
}

func (s *exceptionStream) Close() error { return nil }
