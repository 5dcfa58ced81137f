package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v3"
)

// pollTimeoutSeconds is the server-side getUpdates hold time.
const pollTimeoutSeconds = 20

// Update is the raw long-poll payload. The daemon manages its own
// offset, so updates are decoded from the wire rather than routed
// through telebot's dispatcher.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID int64     `json:"message_id"`
	Chat      ChatRef   `json:"chat"`
	Text      string    `json:"text,omitempty"`
	ReplyTo   *ReplyRef `json:"reply_to_message,omitempty"`
}

type ReplyRef struct {
	MessageID int64 `json:"message_id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data,omitempty"`
	Message *Message `json:"message,omitempty"`
}

type ChatRef struct {
	ID int64 `json:"id"`
}

type updatesResponse struct {
	Result []Update `json:"result"`
}

// GetUpdates long-polls for the next batch of messages and callback
// queries, starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := map[string]interface{}{
		"timeout":         pollTimeoutSeconds,
		"offset":          offset,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	err := c.withRetry(ctx, func() error {
		data, err := c.bot.Raw("getUpdates", payload)
		if err != nil {
			return err
		}
		var decoded updatesResponse
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("decode getUpdates: %w", err)
		}
		updates = decoded.Result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	return updates, nil
}

// NextOffset advances the long-poll offset past a processed batch.
func NextOffset(offset int64, updates []Update) int64 {
	for _, update := range updates {
		if update.UpdateID+1 > offset {
			offset = update.UpdateID + 1
		}
	}
	return offset
}

// GetBotUsername verifies the token against getMe and returns the bot
// username.
func GetBotUsername(token string) (string, error) {
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return "", fmt.Errorf("telegram auth failed: %w", err)
	}
	if bot.Me == nil || bot.Me.Username == "" {
		return "unknown-bot", nil
	}
	return bot.Me.Username, nil
}

// WaitForStartChat polls getUpdates until the operator sends /start,
// returning the chat id to pair with. Used by the guided setup.
func WaitForStartChat(ctx context.Context, token string, maxWait time.Duration) (int64, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: 40 * time.Second},
	})
	if err != nil {
		return 0, fmt.Errorf("create telegram bot: %w", err)
	}

	deadline := time.Now().Add(maxWait)
	var offset int64
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		data, err := bot.Raw("getUpdates", map[string]interface{}{
			"timeout":         pollTimeoutSeconds,
			"offset":          offset,
			"allowed_updates": []string{"message"},
		})
		if err != nil {
			return 0, fmt.Errorf("getUpdates: %w", err)
		}
		var decoded updatesResponse
		if err := json.Unmarshal(data, &decoded); err != nil {
			return 0, fmt.Errorf("decode getUpdates: %w", err)
		}
		for _, update := range decoded.Result {
			offset = update.UpdateID + 1
			if update.Message != nil && update.Message.Text == "/start" {
				return update.Message.Chat.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("timed out waiting for /start from Telegram")
}
