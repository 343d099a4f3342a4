package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/inspectbot/internal/chat"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Client wraps tgbotapi with per-call contexts and the chat.Gateway methods.
type Client struct {
	bot  *tgbotapi.BotAPI
	http *http.Client
}

// Ensure Client implements chat.Gateway.
var _ chat.Gateway = (*Client)(nil)

// NewClient creates a Bot API client. The HTTP client timeout must exceed the
// long-poll timeout; pollTimeout is used to size it. The BotAPI is built
// directly since tgbotapi.NewBotAPI calls getMe.
func NewClient(apiURL, token string, pollTimeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: pollTimeout + 15*time.Second}
	bot := &tgbotapi.BotAPI{Token: token, Client: httpClient, Buffer: 100}
	bot.SetAPIEndpoint(endpointFormat(apiURL))
	return &Client{bot: bot, http: httpClient}
}

func endpointFormat(apiURL string) string {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	return strings.TrimRight(apiURL, "/") + "/bot%s/%s"
}

// contextDoer binds every request of one call to ctx; tgbotapi builds its
// requests without a context.
type contextDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}

// with returns a shallow copy of the bot whose requests are bound to ctx.
func (c *Client) with(ctx context.Context) *tgbotapi.BotAPI {
	bot := *c.bot
	bot.Client = contextDoer{ctx: ctx, client: c.http}
	return &bot
}

func (c *Client) wrap(method string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &APIError{Method: method, Code: apiErr.Code, Description: apiErr.Message}
	}
	// the token is part of the URL; never log or return it
	return fmt.Errorf("telegram %s: %w", method, redact(err, c.bot.Token))
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<token>"), err: err}
}

// parseTarget splits a target into a numeric chat id or a @channel username.
func parseTarget(target string) (int64, string) {
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return id, ""
	}
	return 0, target
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(timeout / time.Second)
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates, err := c.with(ctx).GetUpdates(cfg)
	if err != nil {
		return nil, c.wrap("getUpdates", err)
	}
	return updates, nil
}

// SendMessage sends a text message. parseMode may be empty.
func (c *Client) SendMessage(ctx context.Context, target, text string, markup *tgbotapi.InlineKeyboardMarkup, parseMode string) (tgbotapi.Message, error) {
	id, username := parseTarget(target)
	msg := tgbotapi.NewMessage(id, text)
	msg.ChannelUsername = username
	msg.ParseMode = parseMode
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := c.with(ctx).Send(msg)
	return sent, c.wrap("sendMessage", err)
}

// EditMessageText replaces the text and keyboard of a message.
func (c *Client) EditMessageText(ctx context.Context, target string, messageID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	id, username := parseTarget(target)
	edit := tgbotapi.NewEditMessageText(id, int(messageID), text)
	edit.ChannelUsername = username
	edit.ReplyMarkup = markup
	_, err := c.with(ctx).Request(edit)
	return c.wrap("editMessageText", err)
}

// AnswerCallbackQuery stops the client-side loading indicator of a button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	_, err := c.with(ctx).Request(tgbotapi.NewCallback(callbackID, ""))
	return c.wrap("answerCallbackQuery", err)
}

// SendDocument uploads a local file as a document named after its base name.
func (c *Client) SendDocument(ctx context.Context, target, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("Failed to close document", "path", path, "error", closeErr)
		}
	}()

	id, username := parseTarget(target)
	// struct{ io.Reader } hides Close so the file is closed here, once.
	doc := tgbotapi.NewDocument(id, tgbotapi.FileReader{
		Name:   filepath.Base(path),
		Reader: struct{ io.Reader }{f},
	})
	doc.ChannelUsername = username
	doc.Caption = caption
	_, err = c.with(ctx).Request(doc)
	return c.wrap("sendDocument", err)
}

// SendText implements chat.Gateway.
func (c *Client) SendText(ctx context.Context, target, text string, opts chat.SendOptions) error {
	parseMode := ""
	if opts.Markdown {
		parseMode = tgbotapi.ModeMarkdown
	}
	_, err := c.SendMessage(ctx, target, text, toMarkup(opts.Keyboard), parseMode)
	return err
}

// EditText implements chat.Gateway.
func (c *Client) EditText(ctx context.Context, target string, ref int64, text string, keyboard *chat.Keyboard) error {
	return c.EditMessageText(ctx, target, ref, text, toMarkup(keyboard))
}

// SendFile implements chat.Gateway.
func (c *Client) SendFile(ctx context.Context, target, path, caption string) error {
	return c.SendDocument(ctx, target, path, caption)
}

func toMarkup(kb *chat.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if kb == nil {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(*kb))
	for _, row := range *kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Payload))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
