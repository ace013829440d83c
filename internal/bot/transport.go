package bot

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// sendsPerSecond is the global outbound limit; Telegram allows ~30 msg/s
// for bots, we stay under it.
const sendsPerSecond = 25

// Update is one inbound event from the chat transport.
type Update struct {
	ID       int64          `json:"update_id"`
	Message  *Incoming      `json:"message"`
	Callback *CallbackQuery `json:"callback_query"`
}

// Incoming is an inbound chat message. ThreadID is set for forum topic
// messages.
type Incoming struct {
	MessageID int     `json:"message_id"`
	From      *User   `json:"from"`
	Chat      ChatRef `json:"chat"`
	ThreadID  int64   `json:"message_thread_id"`
	IsTopic   bool    `json:"is_topic_message"`
	Text      string  `json:"text"`
}

// User identifies a message sender.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ChatRef identifies the chat a message belongs to.
type ChatRef struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	IsForum bool   `json:"is_forum"`
}

// CallbackQuery is an inline keyboard button press.
type CallbackQuery struct {
	ID      string    `json:"id"`
	Data    string    `json:"data"`
	Message *Incoming `json:"message"`
}

// Button is one inline keyboard button with a callback payload.
type Button struct {
	Label string
	Data  string
}

// Outgoing describes a message to send. ThreadID zero targets the plain
// chat; ReplyTo zero sends without a reply reference.
type Outgoing struct {
	ChatID   int64
	ThreadID int64
	Text     string
	HTML     bool
	ReplyTo  int
	Keyboard [][]Button
}

// transport is the chat wire surface the service drives. Separated out so
// handler and loop tests run against an in-memory fake.
type transport interface {
	Updates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error)
	Send(ctx context.Context, out Outgoing) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	Typing(ctx context.Context, chatID, threadID int64) error
	AnswerCallback(ctx context.Context, id string) error
	CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error)
	ChatInfo(ctx context.Context, chatID int64) (ChatRef, error)
	BotName() string
}

// telegramAPI implements transport over the Bot API. The tagged client
// predates forum topics, so thread-aware calls go through MakeRequest with
// explicit parameters instead of the typed config structs.
type telegramAPI struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

func newTelegramAPI(token string) (*telegramAPI, error) {
	b, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &telegramAPI{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), sendsPerSecond),
	}, nil
}

func (t *telegramAPI) BotName() string {
	return t.bot.Self.UserName
}

func (t *telegramAPI) Updates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("offset", offset)
	params.AddNonZero("timeout", timeoutSec)
	resp, err := t.bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func (t *telegramAPI) Send(ctx context.Context, out Outgoing) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", out.ChatID)
	params.AddNonZero64("message_thread_id", out.ThreadID)
	params.AddNonEmpty("text", out.Text)
	if out.HTML {
		params.AddNonEmpty("parse_mode", tgbotapi.ModeHTML)
	}
	if out.ReplyTo != 0 {
		params.AddNonZero("reply_to_message_id", out.ReplyTo)
		params.AddBool("allow_sending_without_reply", true)
	}
	if len(out.Keyboard) > 0 {
		if err := params.AddInterface("reply_markup", keyboardMarkup(out.Keyboard)); err != nil {
			return 0, err
		}
	}
	resp, err := t.bot.MakeRequest("sendMessage", params)
	if err != nil {
		return 0, err
	}
	var sent struct {
		MessageID int `json:"message_id"`
	}
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, fmt.Errorf("decode sent message: %w", err)
	}
	return sent.MessageID, nil
}

func (t *telegramAPI) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)
	params.AddNonEmpty("text", text)
	_, err := t.bot.MakeRequest("editMessageText", params)
	return err
}

func (t *telegramAPI) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)
	_, err := t.bot.MakeRequest("deleteMessage", params)
	return err
}

func (t *telegramAPI) Typing(ctx context.Context, chatID, threadID int64) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("message_thread_id", threadID)
	params.AddNonEmpty("action", "typing")
	_, err := t.bot.MakeRequest("sendChatAction", params)
	return err
}

func (t *telegramAPI) AnswerCallback(ctx context.Context, id string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("callback_query_id", id)
	_, err := t.bot.MakeRequest("answerCallbackQuery", params)
	return err
}

func (t *telegramAPI) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonEmpty("name", name)
	params.AddNonZero("icon_color", topicIconColor)
	resp, err := t.bot.MakeRequest("createForumTopic", params)
	if err != nil {
		return 0, err
	}
	var topic struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return 0, fmt.Errorf("decode forum topic: %w", err)
	}
	return topic.MessageThreadID, nil
}

func (t *telegramAPI) ChatInfo(ctx context.Context, chatID int64) (ChatRef, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return ChatRef{}, err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	resp, err := t.bot.MakeRequest("getChat", params)
	if err != nil {
		return ChatRef{}, err
	}
	var ref ChatRef
	if err := json.Unmarshal(resp.Result, &ref); err != nil {
		return ChatRef{}, fmt.Errorf("decode chat: %w", err)
	}
	return ref, nil
}

func keyboardMarkup(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}
