package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

// BedrockInvoker runs prompts against an AWS Bedrock agent alias. The session
// id is passed through unchanged so the agent keeps its conversational memory
// across turns of the same conversation.
type BedrockInvoker struct {
	client       *bedrockagentruntime.Client
	agentID      string
	agentAliasID string
}

// NewBedrockInvoker builds the Bedrock transport from the ambient AWS
// credential chain.
func NewBedrockInvoker(ctx context.Context, region, agentID, agentAliasID string) (*BedrockInvoker, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockInvoker{
		client:       bedrockagentruntime.NewFromConfig(awsCfg),
		agentID:      agentID,
		agentAliasID: agentAliasID,
	}, nil
}

// Invoke implements Invoker.
func (b *BedrockInvoker) Invoke(ctx context.Context, in Input) (Stream, error) {
	input := &bedrockagentruntime.InvokeAgentInput{
		AgentId:      aws.String(b.agentID),
		AgentAliasId: aws.String(b.agentAliasID),
		SessionId:    aws.String(in.SessionID),
		InputText:    aws.String(in.Prompt),
		EnableTrace:  aws.Bool(in.EnableTrace),
	}

	sessionState := &brtypes.SessionState{}
	stateUsed := false

	if strings.TrimSpace(in.SystemContext) != "" {
		sessionState.PromptSessionAttributes = map[string]string{
			"systemContext": in.SystemContext,
		}
		stateUsed = true
	}
	if len(in.ActionGroups) > 0 {
		sessionState.SessionAttributes = map[string]string{
			"actionGroups": strings.Join(in.ActionGroups, ","),
		}
		stateUsed = true
	}
	if len(in.Files) > 0 {
		files := make([]brtypes.InputFile, 0, len(in.Files))
		for _, f := range in.Files {
			files = append(files, brtypes.InputFile{
				Name:    aws.String(f.Name),
				UseCase: brtypes.FileUseCaseChat,
				Source: &brtypes.FileSource{
					SourceType: brtypes.FileSourceTypeS3,
					S3Location: &brtypes.S3ObjectFile{
						Uri: aws.String(f.URI),
					},
				},
			})
		}
		sessionState.Files = files
		stateUsed = true
	}
	if stateUsed {
		input.SessionState = sessionState
	}

	out, err := b.client.InvokeAgent(ctx, input)
	if err != nil {
		return nil, err
	}
	return &bedrockStream{inner: out.GetStream()}, nil
}

// bedrockEventReader is the slice of *bedrockagentruntime.InvokeAgentEventStream
// the stream adapter consumes.
type bedrockEventReader interface {
	Events() <-chan brtypes.ResponseStream
	Close() error
	Err() error
}

type bedrockStream struct {
	inner bedrockEventReader
	done  bool
}

// Recv maps the vendor event-stream union onto bridge events. Unknown member
// kinds (return control, file output) are skipped. A classified exception is
// yielded once; after that the stream is terminated.
func (s *bedrockStream) Recv() (Event, error) {
	if s.done {
		return nil, io.EOF
	}

	for {
		ev, ok := <-s.inner.Events()
		if !ok {
			s.done = true
			if err := s.inner.Err(); err != nil {
				if exc, isExc := classifyBedrockException(err); isExc {
					return exc, nil
				}
				return nil, err
			}
			return nil, io.EOF
		}

		switch v := ev.(type) {
		case *brtypes.ResponseStreamMemberChunk:
			return ChunkEvent{Bytes: v.Value.Bytes}, nil
		case *brtypes.ResponseStreamMemberTrace:
			payload, err := json.Marshal(v.Value)
			if err != nil {
				payload = []byte(fmt.Sprintf("{%q:%q}", "marshalError", err.Error()))
			}
			return TraceEvent{Payload: payload}, nil
		}
	}
}

func (s *bedrockStream) Close() error {
	return s.inner.Close()
}

func classifyBedrockException(err error) (Event, bool) {
	var throttling *brtypes.ThrottlingException
	if errors.As(err, &throttling) {
		return ExceptionEvent{Kind: ExceptionThrottling, Message: aws.ToString(throttling.Message)}, true
	}
	var validation *brtypes.ValidationException
	if errors.As(err, &validation) {
		return ExceptionEvent{Kind: ExceptionValidation, Message: aws.ToString(validation.Message)}, true
	}
	var internal *brtypes.InternalServerException
	if errors.As(err, &internal) {
		return ExceptionEvent{Kind: ExceptionInternalServer, Message: aws.ToString(internal.Message)}, true
	}
	return nil, false
}
