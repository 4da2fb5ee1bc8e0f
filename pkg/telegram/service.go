package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://api.telegram.org"
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

type ServiceInterface interface {
	SendMessage(ctx context.Context, chatID int64, text string, options ...MessageOption) (int, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, options ...MessageOption) (int, error)
	SendDocument(ctx context.Context, chatID int64, fileID, caption string, options ...MessageOption) (int, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error
	EditOrSendMessage(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) (int, error)
	GetUpdates(ctx context.Context, offset int, timeoutSecs int) ([]Update, error)
	SetWebhook(ctx context.Context, url string) error
	DeleteWebhook(ctx context.Context) error
}

type Service struct {
	botToken   string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

type Option func(*Service)

// WithBaseURL points the client at another API host (tests use httptest).
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = strings.TrimSuffix(u, "/") }
}

// WithTimeout bounds each single API call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.backoff = backoff
	}
}

func NewService(botToken string, logger *zap.Logger, opts ...Option) ServiceInterface {
	s := &Service{
		botToken:   botToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sendMessageRequest struct {
	ChatID      int64       `json:"chat_id"`
	Text        string      `json:"text,omitempty"`
	Photo       string      `json:"photo,omitempty"`
	Document    string      `json:"document,omitempty"`
	Caption     string      `json:"caption,omitempty"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type callbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

type editMessageTextRequest struct {
	ChatID      int64       `json:"chat_id"`
	MessageID   int         `json:"message_id"`
	Text        string      `json:"text"`
	ParseMode   string      `json:"parse_mode,omitempty"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type getUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type setWebhookRequest struct {
	URL string `json:"url"`
}

type MessageOption func(*sendMessageRequest)

func WithKeyboard(rows [][]InlineKeyboardButton) MessageOption {
	return func(req *sendMessageRequest) {
		if len(rows) > 0 {
			req.ReplyMarkup = inlineKeyboardMarkup{InlineKeyboard: rows}
		}
	}
}

func WithHTML() MessageOption {
	return func(req *sendMessageRequest) {
		req.ParseMode = "HTML"
	}
}

func (s *Service) SendMessage(ctx context.Context, chatID int64, text string, options ...MessageOption) (int, error) {
	req := &sendMessageRequest{ChatID: chatID, Text: text}
	for _, opt := range options {
		opt(req)
	}
	return s.sendForMessageID(ctx, "sendMessage", req)
}

func (s *Service) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, options ...MessageOption) (int, error) {
	req := &sendMessageRequest{ChatID: chatID, Photo: fileID, Caption: caption}
	for _, opt := range options {
		opt(req)
	}
	return s.sendForMessageID(ctx, "sendPhoto", req)
}

func (s *Service) SendDocument(ctx context.Context, chatID int64, fileID, caption string, options ...MessageOption) (int, error) {
	req := &sendMessageRequest{ChatID: chatID, Document: fileID, Caption: caption}
	for _, opt := range options {
		opt(req)
	}
	return s.sendForMessageID(ctx, "sendDocument", req)
}

func (s *Service) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	if callbackQueryID == "" {
		return fmt.Errorf("%w: empty callback query id", ErrBadRequest)
	}
	return s.call(ctx, "answerCallbackQuery", callbackQueryRequest{CallbackQueryID: callbackQueryID, Text: text}, nil)
}

func (s *Service) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error {
	tmp := &sendMessageRequest{}
	for _, opt := range options {
		opt(tmp)
	}
	return s.call(ctx, "editMessageText", &editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   tmp.ParseMode,
		ReplyMarkup: tmp.ReplyMarkup,
	}, nil)
}

// EditOrSendMessage edits messageID in place, or sends a new message when
// there is nothing to edit.
func (s *Service) EditOrSendMessage(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) (int, error) {
	if messageID == 0 {
		return s.SendMessage(ctx, chatID, text, options...)
	}
	if err := s.EditMessageText(ctx, chatID, messageID, text, options...); err != nil {
		return 0, err
	}
	return messageID, nil
}

// GetUpdates long-polls; the HTTP deadline is extended by the poll timeout.
func (s *Service) GetUpdates(ctx context.Context, offset int, timeoutSecs int) ([]Update, error) {
	var updates []Update
	req := getUpdatesRequest{
		Offset:         offset,
		Timeout:        timeoutSecs,
		AllowedUpdates: []string{"message", "callback_query"},
	}
	err := s.do(ctx, "getUpdates", req, &updates, s.timeout+time.Duration(timeoutSecs)*time.Second)
	return updates, err
}

func (s *Service) SetWebhook(ctx context.Context, url string) error {
	return s.call(ctx, "setWebhook", setWebhookRequest{URL: url}, nil)
}

func (s *Service) DeleteWebhook(ctx context.Context) error {
	return s.call(ctx, "deleteWebhook", struct{}{}, nil)
}

func (s *Service) sendForMessageID(ctx context.Context, method string, payload interface{}) (int, error) {
	var sent struct {
		MessageID int `json:"message_id"`
	}
	if err := s.call(ctx, method, payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// call retries timeouts with exponential backoff; other errors return at once.
func (s *Service) call(ctx context.Context, method string, payload, result interface{}) error {
	backoff := s.backoff
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = s.do(ctx, method, payload, result, s.timeout)
		if err == nil || !isTimeout(err) || ctx.Err() != nil {
			return err
		}
		if attempt == s.attempts {
			break
		}
		s.logger.Warn("telegram call timed out, retrying",
			zap.String("method", method), zap.Int("attempt", attempt), zap.Error(err))
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrTimedOut, ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
	}
	if !errors.Is(err, ErrTimedOut) {
		err = fmt.Errorf("%w: %v", ErrTimedOut, err)
	}
	return err
}

func (s *Service) do(ctx context.Context, method string, payload, result interface{}, timeout time.Duration) error {
	if s.botToken == "" {
		return fmt.Errorf("%w: bot token is not set", ErrBadRequest)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	apiURL := fmt.Sprintf("%s/bot%s/%s", s.baseURL, s.botToken, method)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s: %v", ErrTimedOut, method, err)
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var apiResp struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description,omitempty"`
		ErrorCode   int             `json:"error_code,omitempty"`
		Result      json.RawMessage `json:"result,omitempty"`
		Parameters  struct {
			RetryAfter int `json:"retry_after,omitempty"`
		} `json:"parameters,omitempty"`
	}
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		if resp.StatusCode >= 500 {
			return &APIError{Method: method, Code: resp.StatusCode, Description: resp.Status}
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		code := apiResp.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{
			Method:      method,
			Code:        code,
			Description: apiResp.Description,
			RetryAfter:  apiResp.Parameters.RetryAfter,
		}
	}
	if result != nil && len(apiResp.Result) > 0 {
		if err := json.Unmarshal(apiResp.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
