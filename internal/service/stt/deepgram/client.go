// Package deepgram provides a Deepgram pre-recorded transcription client.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"deepspeak/internal/observability/logging"
	"deepspeak/internal/service/stt"
)

const (
	// DefaultBaseURL is the public Deepgram API.
	DefaultBaseURL = "https://api.deepgram.com"
	listenPath     = "/v1/listen"
	providerName   = "deepgram"

	maxErrorBody = 512
)

// Client implements stt.Client against the Deepgram REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithTimeout bounds every Transcribe call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a Deepgram client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{},
		log:     logging.WithComponent("deepgram"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return providerName
}

// Transcribe streams the payload file as the request body and decodes the response.
func (c *Client) Transcribe(ctx context.Context, p stt.Payload, opts stt.Options) (*stt.Response, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat payload: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(opts), f)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = st.Size()
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", p.MIMEType)
	req.Header.Set("Accept", "application/json")

	c.log.Debug().
		Str("path", p.Path).
		Str("mimetype", p.MIMEType).
		Int64("bytes", st.Size()).
		Str("model", opts.Model).
		Msg("Submitting audio")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, body)
	}

	return stt.ParseResponse(body)
}

func (c *Client) endpoint(opts stt.Options) string {
	q := url.Values{}
	if opts.Model != "" {
		q.Set("model", opts.Model)
	}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	q.Set("smart_format", strconv.FormatBool(opts.SmartFormat))
	q.Set("punctuate", strconv.FormatBool(opts.Punctuate))
	q.Set("paragraphs", strconv.FormatBool(opts.Paragraphs))
	q.Set("utterances", strconv.FormatBool(opts.Utterances))
	return c.baseURL + listenPath + "?" + q.Encode()
}

func (c *Client) transportError(ctx context.Context, err error) error {
	return &stt.APIError{
		Provider: providerName,
		Timeout:  errors.Is(ctx.Err(), context.DeadlineExceeded),
		Cause:    err,
	}
}

// statusError builds an APIError from a non-2xx response. Deepgram
// reports errors as {"err_code", "err_msg"}; older responses use "reason".
func statusError(code int, body []byte) error {
	var errResp struct {
		ErrCode string `json:"err_code"`
		ErrMsg  string `json:"err_msg"`
		Reason  string `json:"reason"`
	}
	msg := ""
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.ErrMsg != "" && errResp.ErrCode != "":
			msg = errResp.ErrCode + ": " + errResp.ErrMsg
		case errResp.ErrMsg != "":
			msg = errResp.ErrMsg
		case errResp.Reason != "":
			msg = errResp.Reason
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
	}
	return &stt.APIError{
		Provider:   providerName,
		StatusCode: code,
		Message:    msg,
		Auth:       code == http.StatusUnauthorized || code == http.StatusForbidden,
	}
}
