package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"tomappdev/chatclient"
	"tomappdev/coach"
	"tomappdev/deepgramapi"
	"tomappdev/httpmiddleware"
	"tomappdev/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxWorkers = 10

	rolePrefix = "role:"
	askPrefix  = "ask:"

	busyReply       = "Still working on your last question, one moment."
	voiceOffReply   = "Voice notes are not enabled. Please type your question."
	voiceFailReply  = "Sorry, I couldn't understand that voice note. Please try again or type your question."
	unknownRoleText = "Choose a role: student, parent or coach."
)

// sender is the part of the bot API used to answer chats.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type TelegramConnectProps struct {
	Logger *logger.LogMiddleware
	Client *chatclient.ChatClient
	// Deepgram transcribes voice notes. Nil disables them.
	Deepgram *deepgramapi.DeepgramAPI
}

type Telegram struct {
	logger   *logger.LogMiddleware
	bot      *tgbotapi.BotAPI
	send     sender
	client   *chatclient.ChatClient
	deepgram *deepgramapi.DeepgramAPI

	maxWorkers int64
	workers    *semaphore.Weighted

	mu       sync.Mutex
	sessions map[int64]*chatclient.Session
}

// Enabled reports whether a bot token is configured.
func Enabled() bool {
	return os.Getenv("TELEGRAM_BOT_TOKEN") != ""
}

func Connect(ctx context.Context, args TelegramConnectProps) (*Telegram, error) {
	tracer := otel.Tracer("telegram/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN environment variable not set")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	debug := os.Getenv("TELEGRAM_DEBUG") == "true"
	bot.Debug = debug

	maxWorkers := defaultMaxWorkers
	if v, err := strconv.Atoi(os.Getenv("TELEGRAM_MAX_WORKERS")); err == nil && v > 0 {
		maxWorkers = v
	}

	span.SetAttributes(
		attribute.String("bot.username", bot.Self.UserName),
		attribute.Bool("bot.debug", debug),
		attribute.Int("maxWorkers", maxWorkers),
	)

	args.Logger.Logger(ctx).Info("[Telegram] Bot connected",
		zap.String("username", bot.Self.UserName),
		zap.Bool("debug", debug),
		zap.Bool("voice", args.Deepgram != nil),
	)

	t := newTelegram(args, bot, maxWorkers)
	t.bot = bot
	return t, nil
}

func newTelegram(args TelegramConnectProps, send sender, maxWorkers int) *Telegram {
	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	return &Telegram{
		logger:     args.Logger,
		send:       send,
		client:     args.Client,
		deepgram:   args.Deepgram,
		maxWorkers: int64(maxWorkers),
		workers:    semaphore.NewWeighted(int64(maxWorkers)),
		sessions:   map[int64]*chatclient.Session{},
	}
}

// Listen polls for updates until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (t *Telegram) Listen(ctx context.Context) error {
	tracer := otel.Tracer("telegram/Listen")
	ctx, span := tracer.Start(ctx, "Listen")
	defer span.End()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	t.logger.Logger(ctx).Info("[Telegram] Listening for updates")

	defer func() {
		t.bot.StopReceivingUpdates()
		t.workers.Acquire(context.Background(), t.maxWorkers)
		t.workers.Release(t.maxWorkers)
		t.logger.Logger(ctx).Info("[Telegram] Listener stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := t.workers.Acquire(ctx, 1); err != nil {
				return nil
			}
			go func() {
				defer t.workers.Release(1)
				t.handleUpdate(ctx, update)
			}()
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	tracer := otel.Tracer("telegram/handleUpdate")
	ctx, span := tracer.Start(ctx, "handleUpdate")
	defer span.End()

	switch {
	case update.Message != nil:
		t.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		t.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

func (t *Telegram) session(chatID int64) *chatclient.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[chatID]
	if !ok {
		s = t.client.NewSession(coach.Student)
		t.sessions[chatID] = s
	}
	return s
}

func (t *Telegram) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	tracer := otel.Tracer("telegram/handleMessage")
	ctx, span := tracer.Start(ctx, "handleMessage")
	defer span.End()

	if message.From == nil || message.Chat == nil {
		return
	}

	chatID := message.Chat.ID
	span.SetAttributes(
		attribute.Int64("user.id", message.From.ID),
		attribute.Int64("chat.id", chatID),
	)

	if message.IsCommand() {
		t.handleCommand(ctx, message)
		return
	}

	text := message.Text
	if message.Voice != nil {
		span.SetAttributes(attribute.String("message.type", "voice"))
		transcript, reply := t.transcribeVoice(ctx, message.Voice)
		if reply != "" {
			t.sendText(ctx, chatID, reply)
			return
		}
		text = transcript
	}

	if strings.TrimSpace(text) == "" {
		return
	}

	t.logger.Logger(ctx).Info("[Telegram] Received message",
		zap.Int64("user_id", message.From.ID),
		zap.String("username", message.From.UserName),
		zap.Int("length", len(text)),
	)
	t.ask(ctx, chatID, text)
}

func (t *Telegram) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	session := t.session(chatID)

	switch message.Command() {
	case "start":
		session.SetRole(session.Role())
		t.sendWithMarkup(ctx, chatID, coach.Greeting(session.Role()), roleKeyboard())
	case "role":
		arg := strings.ToLower(strings.TrimSpace(message.CommandArguments()))
		role, ok := coach.ParseRole(arg)
		if arg == "" || !ok {
			t.sendWithMarkup(ctx, chatID, unknownRoleText, roleKeyboard())
			return
		}
		t.switchRole(ctx, chatID, role)
	case "suggest":
		role := session.Role()
		t.sendWithMarkup(ctx, chatID, "Try asking:", suggestionKeyboard(role))
	default:
		t.sendText(ctx, chatID, "Commands: /start, /role <student|parent|coach>, /suggest")
	}
}

func (t *Telegram) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	tracer := otel.Tracer("telegram/handleCallbackQuery")
	ctx, span := tracer.Start(ctx, "handleCallbackQuery")
	defer span.End()

	if query.From == nil {
		return
	}

	span.SetAttributes(
		attribute.Int64("user.id", query.From.ID),
		attribute.String("callback.data", query.Data),
	)

	if _, err := t.send.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		t.logger.Logger(ctx).Warn("[Telegram] Could not acknowledge callback", zap.Error(err))
	}

	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	chatID := query.Message.Chat.ID

	switch action := parseCallback(query.Data); action.kind {
	case rolePrefix:
		t.switchRole(ctx, chatID, action.role)
	case askPrefix:
		// The suggestion only applies to the role it was offered for.
		if t.session(chatID).Role() != action.role {
			t.sendWithMarkup(ctx, chatID, "That suggestion was for another role. Try asking:", suggestionKeyboard(t.session(chatID).Role()))
			return
		}
		t.ask(ctx, chatID, action.question)
	default:
		t.logger.Logger(ctx).Warn("[Telegram] Unknown callback data", zap.String("data", query.Data))
	}
}

func (t *Telegram) switchRole(ctx context.Context, chatID int64, role coach.Role) {
	t.session(chatID).SetRole(role)
	t.logger.Logger(ctx).Info("[Telegram] Role changed", zap.Int64("chat_id", chatID), zap.String("role", string(role)))
	t.sendWithMarkup(ctx, chatID, coach.Greeting(role), suggestionKeyboard(role))
}

func (t *Telegram) ask(ctx context.Context, chatID int64, text string) {
	session := t.session(chatID)
	if session.Loading() {
		t.sendText(ctx, chatID, busyReply)
		return
	}

	if _, err := t.send.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		t.logger.Logger(ctx).Debug("[Telegram] Could not send typing action", zap.Error(err))
	}

	reply, ok := session.Submit(ctx, text)
	if !ok {
		return
	}
	t.sendText(ctx, chatID, reply.Content)
}

// transcribeVoice returns the transcript, or a reply to send instead.
func (t *Telegram) transcribeVoice(ctx context.Context, voice *tgbotapi.Voice) (string, string) {
	if t.deepgram == nil || t.bot == nil {
		return "", voiceOffReply
	}

	url, err := t.bot.GetFileDirectURL(voice.FileID)
	if err != nil {
		t.logger.Logger(ctx).Error("[Telegram] Could not resolve voice file", zap.Error(err))
		return "", voiceFailReply
	}

	audio, err := httpmiddleware.HttpStream(httpmiddleware.HttpRequestStruct{Ctx: ctx, Method: http.MethodGet, Url: url})
	if err != nil {
		t.logger.Logger(ctx).Error("[Telegram] Could not download voice file", zap.Error(err))
		return "", voiceFailReply
	}
	defer audio.Close()

	transcript, err := t.deepgram.Transcribe(ctx, audio)
	if err != nil {
		return "", voiceFailReply
	}
	return transcript, ""
}

func (t *Telegram) sendText(ctx context.Context, chatID int64, text string) {
	t.sendMessage(ctx, tgbotapi.NewMessage(chatID, text))
}

func (t *Telegram) sendWithMarkup(ctx context.Context, chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	t.sendMessage(ctx, msg)
}

func (t *Telegram) sendMessage(ctx context.Context, msg tgbotapi.MessageConfig) {
	if _, err := t.send.Send(msg); err != nil {
		t.logger.Logger(ctx).Error("[Telegram] Failed to send message", zap.Error(err), zap.Int64("chat_id", msg.ChatID))
	}
}

func roleKeyboard() tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(coach.Roles))
	for _, role := range coach.Roles {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(role.Title(), rolePrefix+string(role)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// suggestionKeyboard refers to questions by index since callback data is capped at 64 bytes.
func suggestionKeyboard(role coach.Role) tgbotapi.InlineKeyboardMarkup {
	suggestions := coach.Suggestions(role)
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(suggestions))
	for i, s := range suggestions {
		data := fmt.Sprintf("%s%s:%d", askPrefix, role, i)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(s, data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

type callbackAction struct {
	kind     string
	role     coach.Role
	question string
}

func parseCallback(data string) callbackAction {
	switch {
	case strings.HasPrefix(data, rolePrefix):
		role, ok := coach.ParseRole(strings.TrimPrefix(data, rolePrefix))
		if !ok {
			return callbackAction{}
		}
		return callbackAction{kind: rolePrefix, role: role}
	case strings.HasPrefix(data, askPrefix):
		value, index, found := strings.Cut(strings.TrimPrefix(data, askPrefix), ":")
		if !found {
			return callbackAction{}
		}
		role, ok := coach.ParseRole(value)
		i, err := strconv.Atoi(index)
		suggestions := coach.Suggestions(role)
		if !ok || err != nil || i < 0 || i >= len(suggestions) {
			return callbackAction{}
		}
		return callbackAction{kind: askPrefix, role: role, question: suggestions[i]}
	}
	return callbackAction{}
}
