package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/hostwatch/internal/domain"
)

const DefaultTelegramURL = "https://api.telegram.org"

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %d %s", e.Method, e.Code, e.Description)
}

// Telegram talks to the Telegram Bot API.
type Telegram struct {
	Token          string
	BaseURL        string
	Client         *http.Client
	RequestTimeout time.Duration
}

func NewTelegram(token, baseURL string) *Telegram {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	return &Telegram{
		Token:   token,
		BaseURL: strings.TrimRight(baseURL, "/"),
		// per-call deadlines come from the context; getUpdates long-polls
		Client:         &http.Client{},
		RequestTimeout: 10 * time.Second,
	}
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from,omitempty"`
	Chat      Chat            `json:"chat"`
	Date      int64           `json:"date"`
	Text      string          `json:"text,omitempty"`
	Entities  []MessageEntity `json:"entities,omitempty"`
}

// IsCommand reports whether the message starts with a bot_command entity.
func (m *Message) IsCommand() bool {
	for _, e := range m.Entities {
		if e.Type == "bot_command" && e.Offset == 0 {
			return true
		}
	}
	return false
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) (domain.MessageHandle, error) {
	var msg Message
	err := t.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, &msg, t.RequestTimeout)
	if err != nil {
		return domain.MessageHandle{}, err
	}
	return domain.MessageHandle{ChatID: msg.Chat.ID, MessageID: msg.MessageID}, nil
}

func (t *Telegram) Edit(ctx context.Context, h domain.MessageHandle, text string) error {
	return t.call(ctx, "editMessageText", map[string]any{
		"chat_id":    h.ChatID,
		"message_id": h.MessageID,
		"text":       text,
	}, nil, t.RequestTimeout)
}

// GetUpdates long-polls for inbound updates with update_id >= offset.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload := map[string]any{
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	var updates []Update
	if err := t.call(ctx, "getUpdates", payload, &updates, timeout+t.RequestTimeout); err != nil {
		return nil, err
	}
	return updates, nil
}

func (t *Telegram) SetCommands(ctx context.Context, cmds []BotCommand) error {
	return t.call(ctx, "setMyCommands", map[string]any{"commands": cmds}, nil, t.RequestTimeout)
}

func (t *Telegram) GetMe(ctx context.Context) (User, error) {
	var u User
	err := t.call(ctx, "getMe", map[string]any{}, &u, t.RequestTimeout)
	return u, err
}

func (t *Telegram) call(ctx context.Context, method string, payload any, out any, timeout time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.BaseURL, t.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// the URL embeds the token; keep it out of logs
		return fmt.Errorf("telegram: %s: %w", method, redact(err, t.Token))
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("telegram: %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, err)
		}
	}
	return nil
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
