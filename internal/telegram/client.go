package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/The-Promised-Neverland/hostwatch/internal/models"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// MaxMessageLength is the Bot API limit on sendMessage text, in characters.
	MaxMessageLength = 4096

	maxResponseSize = 8 << 20
	// requestSlack is added to the long-poll timeout for the HTTP client deadline.
	requestSlack = 15 * time.Second
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL of the Bot API. Defaults to DefaultBaseURL.
	BaseURL string
	Token   string
	// PollTimeout is the server-side long-poll timeout for getUpdates.
	PollTimeout time.Duration
	// HTTPClient is used for all requests. If nil, one with a deadline above
	// PollTimeout is created.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

type Client struct {
	baseURL     string
	token       string
	pollTimeout time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == "" {
		return nil, errors.New("telegram: Token is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("telegram: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if config.PollTimeout < 0 {
		config.PollTimeout = 0
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.PollTimeout + requestSlack}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		token:       config.Token,
		pollTimeout: config.PollTimeout,
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := c.call(ctx, http.MethodPost, "sendMessage", nil, sendMessageRequest{ChatID: chatID, Text: text})
	return err
}

// GetUpdates long-polls for updates starting at offset. Updates that do not
// match the expected shape are dropped; their ids are still reported through
// the returned slice when readable so the caller can move past them.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(offset, 10))
	query.Set("timeout", strconv.Itoa(int(timeout/time.Second)))
	query.Set("allowed_updates", `["message"]`)

	result, err := c.call(ctx, http.MethodGet, "getUpdates", query, nil)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(result, &raws); err != nil {
		return nil, fmt.Errorf("telegram: getUpdates result is not a list: %w", err)
	}
	updates := make([]Update, 0, len(raws))
	for _, raw := range raws {
		var update Update
		if err := json.Unmarshal(raw, &update); err != nil {
			var idOnly struct {
				UpdateID int64 `json:"update_id"`
			}
			if idErr := json.Unmarshal(raw, &idOnly); idErr != nil || idOnly.UpdateID == 0 {
				c.logger.Warn("Dropping undecodable update", "err", err)
				continue
			}
			c.logger.Warn("Dropping malformed update", "update_id", idOnly.UpdateID, "err", err)
			update = Update{UpdateID: idOnly.UpdateID}
		}
		if update.UpdateID == 0 {
			c.logger.Warn("Dropping update without update_id")
			continue
		}
		updates = append(updates, update)
	}
	return updates, nil
}

// PollUpdates adapts GetUpdates to the transport-neutral update model.
func (c *Client) PollUpdates(ctx context.Context, offset int64) ([]models.Update, error) {
	updates, err := c.GetUpdates(ctx, offset, c.pollTimeout)
	if err != nil {
		return nil, err
	}
	out := make([]models.Update, 0, len(updates))
	for _, u := range updates {
		m := models.Update{ID: u.UpdateID}
		if u.Message != nil {
			m.RecipientID = strconv.FormatInt(u.Message.Chat.ID, 10)
			m.Text = u.Message.Text
			if u.Message.From != nil {
				m.SenderID = strconv.FormatInt(u.Message.From.ID, 10)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// call performs one Bot API request and returns the envelope's result field.
func (c *Client) call(ctx context.Context, httpMethod, apiMethod string, query url.Values, requestBody any) (json.RawMessage, error) {
	requestURL := c.baseURL + "/bot" + c.token + "/" + apiMethod
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("telegram: failed to encode %s request: %w", apiMethod, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, httpMethod, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to create %s request", apiMethod)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		// url.Error embeds the full URL, token included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("telegram: %s request failed: %w", apiMethod, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("telegram: failed to read %s response: %w", apiMethod, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("telegram: unexpected %d response from %s: %w", response.StatusCode, apiMethod, err)
	}
	if !envelope.OK {
		apiErr := &APIError{
			Method:      apiMethod,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if apiErr.Code == 0 {
			apiErr.Code = response.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		return nil, apiErr
	}
	return envelope.Result, nil
}
