package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tomappdev/chatapi"
	"tomappdev/coach"
	"tomappdev/framing"
	"tomappdev/httpmiddleware"
	"tomappdev/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type MessageRole string

const (
	User      MessageRole = "user"
	Assistant MessageRole = "assistant"
)

const (
	ErrorReply = "Sorry, I encountered an error. Please try again."
	EmptyReply = "I apologize, but I could not generate a response. Please try again."

	chunkSize = 4096
)

type Message struct {
	ID      string
	Content string
	Role    MessageRole
}

func newMessage(role MessageRole, content string) Message {
	return Message{ID: uuid.NewString(), Content: content, Role: role}
}

type ChatClientConnectProps struct {
	Logger     *logger.LogMiddleware
	BaseURL    string
	HTTPClient *http.Client
}

type ChatClient struct {
	logger     *logger.LogMiddleware
	baseURL    string
	httpClient *http.Client
}

func Connect(ctx context.Context, args ChatClientConnectProps) *ChatClient {
	tracer := otel.Tracer("chatclient/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	baseURL := strings.TrimRight(args.BaseURL, "/")

	span.SetAttributes(attribute.String("base_url", baseURL))
	args.Logger.Logger(ctx).Info("[ChatClient] Client configured", zap.String("base_url", baseURL))

	return &ChatClient{logger: args.Logger, baseURL: baseURL, httpClient: args.HTTPClient}
}

// RoleInfo fetches the greeting and suggested questions the server offers for role.
func (c *ChatClient) RoleInfo(ctx context.Context, role coach.Role) (*chatapi.RoleInfo, error) {
	tracer := otel.Tracer("chatclient/RoleInfo")
	ctx, span := tracer.Start(ctx, "RoleInfo")
	defer span.End()

	body, err := httpmiddleware.HttpRequest(httpmiddleware.HttpRequestStruct{
		Ctx:     ctx,
		Method:  http.MethodGet,
		Url:     c.baseURL + "/api/roles/" + string(role),
		Headers: map[string]string{"Accept": "application/json"},
		Client:  c.httpClient,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch role info: %w", err)
	}

	var info chatapi.RoleInfo
	if err := json.Unmarshal(body, &info); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode role info: %w", err)
	}
	return &info, nil
}

// stream posts the history and reads the framed reply until the server closes the body.
func (c *ChatClient) stream(ctx context.Context, role coach.Role, history []chatapi.ChatMessage) (string, error) {
	tracer := otel.Tracer("chatclient/stream")
	ctx, span := tracer.Start(ctx, "stream")
	defer span.End()

	span.SetAttributes(
		attribute.String("chat.role", string(role)),
		attribute.Int("chat.history_length", len(history)),
	)

	payload, err := json.Marshal(chatapi.ChatRequest{Messages: history})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	body, err := httpmiddleware.HttpStream(httpmiddleware.HttpRequestStruct{
		Ctx:    ctx,
		Method: http.MethodPost,
		Url:    c.baseURL + "/api/chat",
		Body:   bytes.NewReader(payload),
		Headers: map[string]string{
			"Content-Type":     "application/json",
			chatapi.RoleHeader: string(role),
		},
		Client: c.httpClient,
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer body.Close()

	var decoder framing.Decoder
	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			decoder.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("read stream: %w", err)
		}
	}
	decoder.Close()

	span.SetAttributes(attribute.Int("chat.frames", decoder.Frames()))
	return decoder.Text(), nil
}

// Session holds one conversation. Messages are only ever appended, and at
// most one turn is in flight.
type Session struct {
	client  *ChatClient
	loading atomic.Bool

	mu       sync.Mutex
	role     coach.Role
	epoch    int
	messages []Message
}

func (c *ChatClient) NewSession(role coach.Role) *Session {
	s := &Session{client: c}
	s.reset(role)
	return s
}

func (s *Session) reset(role coach.Role) {
	s.role = role
	s.epoch++
	s.messages = []Message{newMessage(Assistant, coach.Greeting(role))}
}

// SetRole starts a fresh conversation with the new role's greeting. A turn
// still in flight is not cancelled: its reply is discarded when it arrives, and
// Loading stays true until then, so submissions to the new conversation are
// dropped in the meantime.
func (s *Session) SetRole(role coach.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(role)
}

func (s *Session) Role() coach.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Session) Loading() bool {
	return s.loading.Load()
}

// ShowSuggestions reports whether the conversation still only holds the greeting.
func (s *Session) ShowSuggestions() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages) <= 1
}

// Submit runs one turn. Blank input, or input arriving while a turn is in
// flight, is dropped and reports false. Failures never surface as errors: they
// become the assistant's reply.
func (s *Session) Submit(ctx context.Context, input string) (Message, bool) {
	if strings.TrimSpace(input) == "" {
		return Message{}, false
	}
	if !s.loading.CompareAndSwap(false, true) {
		s.client.logger.Logger(ctx).Debug("[ChatClient] Dropped submission while a reply is loading")
		return Message{}, false
	}
	defer s.loading.Store(false)

	tracer := otel.Tracer("chatclient/Submit")
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()

	s.mu.Lock()
	s.messages = append(s.messages, newMessage(User, input))
	history := make([]chatapi.ChatMessage, 0, len(s.messages))
	for _, m := range s.messages {
		history = append(history, chatapi.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	role := s.role
	epoch := s.epoch
	s.mu.Unlock()

	text, err := s.client.stream(ctx, role, history)

	content := text
	switch {
	case err != nil:
		span.RecordError(err)
		s.client.logger.Logger(ctx).Error("[ChatClient] Chat request failed", zap.Error(err), zap.String("role", string(role)))
		content = ErrorReply
	case text == "":
		s.client.logger.Logger(ctx).Warn("[ChatClient] Stream ended without text", zap.String("role", string(role)))
		content = EmptyReply
	}

	reply := newMessage(Assistant, content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return reply, false
	}
	s.messages = append(s.messages, reply)
	return reply, true
}
