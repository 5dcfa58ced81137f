// Package chat is the typed Telegram layer: every outbound call is
// rate limited and retried with exponential backoff, bodies use the
// MarkdownV2 dialect, and oversized text falls back to documents.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

// requestsPerSecond bounds all outbound Telegram calls combined.
const requestsPerSecond = 20

// Client wraps a telebot instance bound to the single operator chat.
type Client struct {
	bot     *tele.Bot
	chatID  int64
	limiter *rate.Limiter
}

// New connects to Telegram (verifying the token via getMe) and returns
// a client addressing the configured operator chat.
func New(token string, chatID int64) (*Client, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token: token,
		// The long poll blocks server-side for 20s; leave headroom.
		Client: &http.Client{Timeout: 40 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return NewWithBot(bot, chatID), nil
}

// NewWithBot wires a client around an existing bot handle. Tests use
// this with an offline bot pointed at a loopback API.
func NewWithBot(bot *tele.Bot, chatID int64) *Client {
	return &Client{
		bot:     bot,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// ChatID returns the configured operator chat id.
func (c *Client) ChatID() int64 {
	return c.chatID
}

func (c *Client) chat() *tele.Chat {
	return &tele.Chat{ID: c.chatID}
}

// withRetry runs op under the shared rate limiter and the retry
// policy: 250ms initial backoff, 4s cap, 20s total budget. Only
// transient failures are retried.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 4 * time.Second
	policy.MaxElapsedTime = 20 * time.Second

	return backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err == nil {
			return nil
		}
		if isTransientError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}

// isTransientError reports whether a Telegram call is worth retrying:
// network timeouts and connect failures, HTTP 5xx, 429, or an API
// description that names a transient condition.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 || apiErr.Code == 429 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"too many requests",
		"retry after",
		"timed out",
		"bad gateway",
		"gateway timeout",
		"internal server error",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// SendMessage sends plain text and returns the message id.
func (c *Client) SendMessage(ctx context.Context, text string) (int64, error) {
	var sent *tele.Message
	err := c.withRetry(ctx, func() error {
		var err error
		sent, err = c.bot.Send(c.chat(), text)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sendMessage: %w", err)
	}
	return int64(sent.ID), nil
}

// SendMarkdown sends a MarkdownV2 body and returns the message id.
func (c *Client) SendMarkdown(ctx context.Context, text string) (int64, error) {
	return c.SendMarkdownWithMarkup(ctx, text, nil)
}

// SendMarkdownWithMarkup sends a MarkdownV2 body with an optional
// inline keyboard.
func (c *Client) SendMarkdownWithMarkup(ctx context.Context, text string, markup *tele.ReplyMarkup) (int64, error) {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if markup != nil {
		opts.ReplyMarkup = markup
	}
	var sent *tele.Message
	err := c.withRetry(ctx, func() error {
		var err error
		sent, err = c.bot.Send(c.chat(), text, opts)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sendMessage markdown: %w", err)
	}
	return int64(sent.ID), nil
}

// SendDocument uploads bytes as a plain-text attachment with an
// optional MarkdownV2 caption.
func (c *Client) SendDocument(ctx context.Context, fileName string, data []byte, caption string) (int64, error) {
	var sent *tele.Message
	err := c.withRetry(ctx, func() error {
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(data)),
			FileName: fileName,
			MIME:     "text/plain; charset=utf-8",
			Caption:  caption,
		}
		var err error
		sent, err = c.bot.Send(c.chat(), doc, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sendDocument: %w", err)
	}
	return int64(sent.ID), nil
}

// SendPermissionMessage posts the permission prompt with Allow/Deny
// inline buttons and returns the message id.
func (c *Client) SendPermissionMessage(ctx context.Context, sessionName, command, cwd, requestID string, timeoutSeconds int64) (int64, error) {
	text := PermissionMessageText(sessionName, command, cwd, timeoutSeconds)
	markup := &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: "Allow", Data: "permit:" + requestID + ":allow"},
			{Text: "Deny", Data: "permit:" + requestID + ":deny"},
		}},
	}
	return c.SendMarkdownWithMarkup(ctx, text, markup)
}

// PermissionMessageText renders the permission prompt body.
func PermissionMessageText(sessionName, command, cwd string, timeoutSeconds int64) string {
	minutes := timeoutSeconds / 60
	seconds := timeoutSeconds % 60
	return fmt.Sprintf(
		"*🔴 Permission* · %s\n\n*Claude wants to run*\n%s\n\n*Dir* %s\n\nAuto deny in %02d:%02d",
		InlineCode(sessionName),
		CodeBlock("bash", command),
		InlineCode(cwd),
		minutes, seconds,
	)
}

// EditMessage replaces the text of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, messageID int64, text string) error {
	target := &tele.Message{ID: int(messageID), Chat: c.chat()}
	err := c.withRetry(ctx, func() error {
		_, err := c.bot.Edit(target, text)
		return err
	})
	if err != nil {
		return fmt.Errorf("editMessageText: %w", err)
	}
	return nil
}

// AnswerCallbackQuery acknowledges a callback so the operator's client
// stops the spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	err := c.withRetry(ctx, func() error {
		return c.bot.Respond(&tele.Callback{ID: callbackID})
	})
	if err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}
