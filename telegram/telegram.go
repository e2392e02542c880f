// Package telegram wraps the Telegram Bot API for the approval channel:
// chunked sends, media groups, control-message edits and cursor-based
// update polling.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// maxMessageLen stays under Telegram's 4096 hard limit with some buffer.
	maxMessageLen = 4000
	// maxCaptionLen is Telegram's media-group caption limit.
	maxCaptionLen = 1024
	// maxMediaItems is Telegram's media-group size limit.
	maxMediaItems = 10
)

// MessageRef identifies a sent message for later edits.
type MessageRef struct {
	ChatID    string
	MessageID int
}

// Event is one inbound update folded into channel-neutral form.
type Event struct {
	UpdateID int64
	Callback *CallbackEvent
	Message  *MessageEvent
}

// CallbackEvent is an inline-button press.
type CallbackEvent struct {
	ID         string
	Data       string
	FromUserID int64
	ChatID     int64
	MessageID  int
}

// MessageEvent is a plain chat message.
type MessageEvent struct {
	FromUserID int64
	ChatID     int64
	Text       string
}

// Client talks to one configured approval chat.
type Client struct {
	api    *tgbotapi.BotAPI
	chatID string
}

// New creates a client for the given bot token and chat. chatID may be a
// numeric id or an @channel name.
func New(token, chatID string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Client{api: api, chatID: strings.TrimSpace(chatID)}, nil
}

// NewWithEndpoint creates a client against a custom API endpoint (for tests).
func NewWithEndpoint(token, chatID, endpoint string) (*Client, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Client{api: api, chatID: strings.TrimSpace(chatID)}, nil
}

// ChatMatches reports whether an update's chat is the configured one. When
// the configured chat is an @channel the numeric id cannot be compared, so
// the update is allowed through.
func (c *Client) ChatMatches(chatID int64) bool {
	if c.chatID == "" {
		return false
	}
	if strings.HasPrefix(c.chatID, "@") {
		return true
	}
	want, err := strconv.ParseInt(c.chatID, 10, 64)
	if err != nil {
		return false
	}
	return chatID == want
}

func (c *Client) baseChat() tgbotapi.BaseChat {
	if strings.HasPrefix(c.chatID, "@") {
		return tgbotapi.BaseChat{ChannelUsername: c.chatID}
	}
	id, _ := strconv.ParseInt(c.chatID, 10, 64)
	return tgbotapi.BaseChat{ChatID: id}
}

// SendMessage sends text to the approval chat, chunking to the hard size
// limit. The reply markup, if any, is attached only to the final chunk.
// Returns the reference of the last message sent.
func (c *Client) SendMessage(ctx context.Context, text string, markup *tgbotapi.InlineKeyboardMarkup) (MessageRef, error) {
	chunks := chunkText(text, maxMessageLen)

	var last MessageRef
	for i, chunk := range chunks {
		msg := tgbotapi.MessageConfig{
			BaseChat:              c.baseChat(),
			Text:                  chunk,
			DisableWebPagePreview: true,
		}
		if markup != nil && i == len(chunks)-1 {
			msg.ReplyMarkup = *markup
		}

		sent, err := c.api.Send(msg)
		if err != nil {
			return MessageRef{}, fmt.Errorf("send message: %w", err)
		}
		last = MessageRef{ChatID: c.chatID, MessageID: sent.MessageID}
	}
	return last, nil
}

// SendText sends plain text with no controls attached.
func (c *Client) SendText(ctx context.Context, text string) (MessageRef, error) {
	return c.SendMessage(ctx, text, nil)
}

// SendControls sends the action-control message for a token.
func (c *Client) SendControls(ctx context.Context, text, token string) (MessageRef, error) {
	return c.SendMessage(ctx, text, ApprovalKeyboard(token))
}

// SendMediaGroup sends up to ten photos with a caption on the first item.
// Caption overflow beyond the caption limit is sent as a follow-up message.
func (c *Client) SendMediaGroup(ctx context.Context, imageURLs []string, caption string) error {
	if len(imageURLs) == 0 {
		if caption != "" {
			_, err := c.SendMessage(ctx, caption, nil)
			return err
		}
		return nil
	}
	if len(imageURLs) > maxMediaItems {
		imageURLs = imageURLs[:maxMediaItems]
	}

	mediaCaption := caption
	overflow := ""
	if len([]rune(caption)) > maxCaptionLen {
		runes := []rune(caption)
		mediaCaption = strings.TrimRight(string(runes[:maxCaptionLen-50]), " \n") + "\n\n(Full text sent below.)"
		overflow = caption
	}

	media := make([]interface{}, 0, len(imageURLs))
	for i, url := range imageURLs {
		photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(url))
		if i == 0 && mediaCaption != "" {
			photo.Caption = mediaCaption
		}
		media = append(media, photo)
	}

	bc := c.baseChat()
	group := tgbotapi.MediaGroupConfig{
		ChatID:          bc.ChatID,
		ChannelUsername: bc.ChannelUsername,
		Media:           media,
	}
	if _, err := c.api.SendMediaGroup(group); err != nil {
		return fmt.Errorf("send media group: %w", err)
	}

	if overflow != "" {
		if _, err := c.SendMessage(ctx, overflow, nil); err != nil {
			return err
		}
	}
	return nil
}

// EditMessageText rewrites a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, ref MessageRef, text string) error {
	edit := tgbotapi.EditMessageTextConfig{
		BaseEdit:              c.baseEdit(ref),
		Text:                  text,
		DisableWebPagePreview: true,
	}
	if _, err := c.api.Request(edit); err != nil {
		return fmt.Errorf("edit message text: %w", err)
	}
	return nil
}

// ClearButtons strips the inline keyboard from a control message so stale UI
// cannot trigger a second action.
func (c *Client) ClearButtons(ctx context.Context, ref MessageRef) error {
	empty := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow())
	empty.InlineKeyboard = [][]tgbotapi.InlineKeyboardButton{}

	edit := tgbotapi.EditMessageReplyMarkupConfig{
		BaseEdit: c.baseEdit(ref),
	}
	edit.ReplyMarkup = &empty
	if _, err := c.api.Request(edit); err != nil {
		return fmt.Errorf("clear reply markup: %w", err)
	}
	return nil
}

func (c *Client) baseEdit(ref MessageRef) tgbotapi.BaseEdit {
	if strings.HasPrefix(ref.ChatID, "@") {
		return tgbotapi.BaseEdit{ChannelUsername: ref.ChatID, MessageID: ref.MessageID}
	}
	id, _ := strconv.ParseInt(ref.ChatID, 10, 64)
	return tgbotapi.BaseEdit{ChatID: id, MessageID: ref.MessageID}
}

// AnswerCallback acknowledges a button press. Best-effort: stale-query and
// other API errors are swallowed because the press has already been recorded.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) {
	cb := tgbotapi.NewCallback(callbackID, text)
	_, _ = c.api.Request(cb)
}

// Updates performs one non-blocking getUpdates poll starting strictly after
// the given cursor.
func (c *Client) Updates(ctx context.Context, offset int64) ([]Event, error) {
	u := tgbotapi.NewUpdate(0)
	if offset > 0 {
		u.Offset = int(offset) + 1
	}
	u.Timeout = 0

	updates, err := c.api.GetUpdates(u)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	events := make([]Event, 0, len(updates))
	for _, upd := range updates {
		ev := Event{UpdateID: int64(upd.UpdateID)}
		if cb := upd.CallbackQuery; cb != nil {
			e := &CallbackEvent{ID: cb.ID, Data: strings.TrimSpace(cb.Data)}
			if cb.From != nil {
				e.FromUserID = cb.From.ID
			}
			if cb.Message != nil {
				e.MessageID = cb.Message.MessageID
				if cb.Message.Chat != nil {
					e.ChatID = cb.Message.Chat.ID
				}
			}
			ev.Callback = e
		}
		if msg := upd.Message; msg != nil {
			e := &MessageEvent{Text: strings.TrimSpace(msg.Text)}
			if msg.From != nil {
				e.FromUserID = msg.From.ID
			}
			if msg.Chat != nil {
				e.ChatID = msg.Chat.ID
			}
			ev.Message = e
		}
		events = append(events, ev)
	}
	return events, nil
}

// ApprovalKeyboard builds the action-control set for a token. Callback data
// follows the "<verb>:<token>" convention.
func ApprovalKeyboard(token string) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", "go:"+token),
			tgbotapi.NewInlineKeyboardButtonData("🛑 Deny", "no:"+token),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔁 Remix", "remix:"+token),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Custom", "custom:"+token),
		),
	)
	return &markup
}

func chunkText(text string, limit int) []string {
	if text == "" {
		return []string{""}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
