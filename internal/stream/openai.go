package stream

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

// OpenAISource streams the content deltas of a chat completion.
type OpenAISource struct {
	client *openai.Client
	params openai.ChatCompletionNewParams
	onDone func(reply string)

	stream *ssestream.Stream[openai.ChatCompletionChunk]
	reply  strings.Builder
	done   bool
}

// NewOpenAISource creates a source for one streaming completion. The
// request is sent on the first call to Next and lives as long as that
// call's context.
func NewOpenAISource(client *openai.Client, params openai.ChatCompletionNewParams) *OpenAISource {
	return &OpenAISource{client: client, params: params}
}

// Next implements TokenSource.
func (s *OpenAISource) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	if s.stream == nil {
		s.stream = s.client.Chat.Completions.NewStreaming(ctx, s.params)
	}

	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.reply.WriteString(delta)
			return delta, nil
		}
	}

	s.done = true
	if err := s.stream.Err(); err != nil {
		return "", err
	}
	if s.onDone != nil {
		s.onDone(s.reply.String())
	}
	return "", io.EOF
}

// Reply returns the text received so far.
func (s *OpenAISource) Reply() string {
	return s.reply.String()
}

// Close releases the underlying HTTP response.
func (s *OpenAISource) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

// Conversation keeps chat history across prompts so each reply has the
// context of the previous ones.
type Conversation struct {
	client *openai.Client
	model  string

	mu       sync.Mutex
	messages []openai.ChatCompletionMessageParamUnion
}

// NewConversation starts a conversation. An empty system prompt is omitted.
func NewConversation(client *openai.Client, model, system string) *Conversation {
	c := &Conversation{client: client, model: model}
	if system != "" {
		c.messages = append(c.messages, openai.SystemMessage(system))
	}
	return c
}

// Ask sends prompt and returns a source streaming the reply. The reply is
// added to the history once it has been received in full.
func (c *Conversation) Ask(prompt string) *OpenAISource {
	c.mu.Lock()
	c.messages = append(c.messages, openai.UserMessage(prompt))
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: append([]openai.ChatCompletionMessageParamUnion(nil), c.messages...),
	}
	c.mu.Unlock()

	src := NewOpenAISource(c.client, params)
	src.onDone = func(reply string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.messages = append(c.messages, openai.AssistantMessage(reply))
	}
	return src
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
