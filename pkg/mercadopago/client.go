package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/preapproval"

	"github.com/fitmarket/coachplans/pkg/coachplan"
	"github.com/fitmarket/coachplans/pkg/logger"
)

const apiBaseURL = "https://api.mercadopago.com"

// Client implements coachplan.PaymentGateway on top of the Mercado Pago SDK.
// Preapprovals go through the SDK client; authorized payments, which the SDK
// does not cover, are read with a plain authenticated GET.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	preapprovals preapproval.Client
	setupErr     error
	log          *slog.Logger
}

var _ coachplan.PaymentGateway = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// NewClient creates a Client. A missing access token is not an error here;
// the client reports coachplan.ErrPaymentNotConfigured on use.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = apiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("mercadopago"))

	if err := c.routeTo(cfg.BaseURL); err != nil {
		c.setupErr = err
		return c
	}
	if cfg.AccessToken == "" {
		return c
	}
	sdkCfg, err := mpconfig.New(cfg.AccessToken, mpconfig.WithHTTPClient(c.httpClient))
	if err != nil {
		c.setupErr = fmt.Errorf("mercadopago: sdk config: %w", err)
		return c
	}
	c.preapprovals = preapproval.NewClient(sdkCfg)
	return c
}

// Configured reports whether an access token is set.
func (c *Client) Configured() bool {
	return c.cfg.AccessToken != "" && c.setupErr == nil
}

func (c *Client) ready() error {
	if c.setupErr != nil {
		return errors.Join(coachplan.ErrPaymentNotConfigured, c.setupErr)
	}
	if c.cfg.AccessToken == "" {
		return coachplan.ErrPaymentNotConfigured
	}
	return nil
}

// routeTo installs the transport shared by the SDK and the plain requests.
func (c *Client) routeTo(base string) error {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("mercadopago: invalid base url %q", base)
	}
	hc := *c.httpClient
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	if base == apiBaseURL {
		u = nil
	}
	hc.Transport = &apiTransport{base: u, next: next}
	c.httpClient = &hc
	return nil
}

// apiTransport sends requests built for the public API host to the
// configured base URL and gives every POST an idempotency key.
type apiTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *apiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.base != nil {
		r.URL.Scheme = t.base.Scheme
		r.URL.Host = t.base.Host
		r.URL.Path = strings.TrimRight(t.base.Path, "/") + req.URL.Path
		r.URL.RawPath = ""
		r.Host = ""
	}
	if r.Method == http.MethodPost && r.Header.Get("X-Idempotency-Key") == "" {
		r.Header.Set("X-Idempotency-Key", uuid.NewString())
	}
	return t.next.RoundTrip(r)
}

// get reads path from the API and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.ready(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("mercadopago: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(coachplan.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Join(coachplan.ErrGatewayUnavailable, err)
	}

	c.log.DebugContext(ctx, "mercadopago request",
		slog.String("method", http.MethodGet), slog.String("path", path),
		slog.Int("status", resp.StatusCode), logger.Duration(time.Since(start)))

	if resp.StatusCode >= http.StatusBadRequest {
		return classify(resp.StatusCode, raw)
	}
	if len(raw) == 0 {
		return errors.Join(coachplan.ErrGatewayUnavailable, ErrEmptyResponse)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(coachplan.ErrGatewayUnavailable, fmt.Errorf("mercadopago: decode response: %w", err))
	}
	return nil
}

// sdkError maps an SDK failure onto the coachplan sentinels.
func sdkError(err error) error {
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		return classify(respErr.StatusCode, []byte(respErr.Message))
	}
	return errors.Join(coachplan.ErrGatewayUnavailable, err)
}

func classify(status int, body []byte) error {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = status

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(coachplan.ErrPaymentNotConfigured, apiErr)
	case http.StatusNotFound:
		return errors.Join(coachplan.ErrSubscriptionNotFound, apiErr)
	}
	return errors.Join(coachplan.ErrGatewayUnavailable, apiErr)
}
