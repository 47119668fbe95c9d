package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ent0n29/dayroom/internal/audio"
	"github.com/ent0n29/dayroom/internal/memory"
	"github.com/ent0n29/dayroom/internal/observability"
	"github.com/ent0n29/dayroom/internal/reliability"
	"github.com/ent0n29/dayroom/internal/session"
)

const (
	defaultTimeout = 60 * time.Second
	maxReplyBytes  = 32 << 20
	maxErrorBytes  = 4 << 10
)

// Config controls client construction.
type Config struct {
	BaseURL  string
	TurnPath string
	Timeout  time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client posts turns to the brain backend. It issues exactly one request per
// SendTurn call and never retries.
type Client struct {
	url     string
	client  *http.Client
	metrics *observability.Metrics
}

func NewClient(cfg Config, metrics *observability.Metrics) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("brain base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid brain base URL: %w", err)
	}
	path := strings.TrimSpace(cfg.TurnPath)
	if path == "" {
		path = DefaultTurnPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{url: base + path, client: httpClient, metrics: metrics}, nil
}

// URL is the full turn endpoint.
func (c *Client) URL() string { return c.url }

// SendTurn posts the utterance and history and parses the spoken reply.
// Failures are always *BackendError.
func (c *Client) SendTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	ctx, span := observability.StartSpan(ctx, "brain.send_turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.id", req.TurnID),
		attribute.Int("turn.audio_bytes", len(req.Audio.Data)),
		attribute.Int("turn.history_items", len(req.History)),
	)

	resp, err := c.send(ctx, req)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			span.SetAttributes(attribute.Int("http.status_code", be.StatusCode))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TurnResponse{}, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) send(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return TurnResponse{}, &BackendError{Message: MessageConnectionLost, Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return TurnResponse{}, &BackendError{Message: MessageConnectionLost, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "audio/*, application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		c.metrics.ObserveBackendResponse(reliability.StatusClass(0))
		return TurnResponse{}, &BackendError{
			Message:   MessageConnectionLost,
			Retryable: reliability.IsRetryableTransportError(err),
			Err:       fmt.Errorf("send request: %w", err),
		}
	}
	defer res.Body.Close()
	c.metrics.ObserveBackendResponse(reliability.StatusClass(res.StatusCode))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBytes))
		return TurnResponse{}, &BackendError{
			StatusCode: res.StatusCode,
			Message:    errorMessage(res.StatusCode, raw),
			Retryable:  reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxReplyBytes))
	if err != nil {
		return TurnResponse{}, &BackendError{
			StatusCode: res.StatusCode,
			Message:    MessageConnectionLost,
			Retryable:  true,
			Err:        fmt.Errorf("read response: %w", err),
		}
	}
	if len(data) == 0 {
		return TurnResponse{}, &BackendError{StatusCode: res.StatusCode, Message: MessageMissingAudio, Err: ErrMissingAudio}
	}

	ct := strings.TrimSpace(res.Header.Get("Content-Type"))
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = audio.Sniff(data)
	}
	return TurnResponse{
		Audio:           data,
		ContentType:     ct,
		UserText:        headerText(res.Header, HeaderUserText),
		AIText:          headerText(res.Header, HeaderAIText),
		ComplianceScore: ParseComplianceScore(res.Header.Get(HeaderComplianceScore)),
		StatusCode:      res.StatusCode,
	}, nil
}

func encodeMultipart(req TurnRequest) (io.Reader, string, error) {
	history := req.History
	if history == nil {
		history = []memory.HistoryItem{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, "", fmt.Errorf("marshal history: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	audioType := req.Audio.ContentType
	if audioType == "" {
		audioType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldAudio, audioName+audio.Extension(audioType)))
	h.Set("Content-Type", audioType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Audio.Data); err != nil {
		return nil, "", err
	}

	if err := mw.WriteField(fieldHistory, string(historyJSON)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// errorMessage extracts the backend's error text verbatim, falling back to
// the HTTP status text.
func errorMessage(status int, raw []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch v := obj["error"].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && strings.TrimSpace(msg) != "" {
				return msg
			}
		}
		if msg, ok := obj["message"].(string); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return "Brain Freeze: " + http.StatusText(status)
}

// headerText returns a metadata header, percent-decoding it when the backend
// escaped non-ASCII text.
func headerText(h http.Header, key string) string {
	v := strings.TrimSpace(h.Get(key))
	if !strings.Contains(v, "%") {
		return v
	}
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

// ParseComplianceScore accepts a decimal integer in [0,100]; anything else
// yields nil.
func ParseComplianceScore(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || !session.ValidComplianceScore(n) {
		return nil
	}
	return &n
}
