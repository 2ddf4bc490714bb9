package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL  string        `yaml:"baseURL" envconfig:"PAYMENT_BASE_URL" default:"http://localhost:4242"`
	APIKey   string        `yaml:"apiKey" envconfig:"PAYMENT_API_KEY"`
	Currency string        `yaml:"currency" envconfig:"PAYMENT_CURRENCY" default:"USD"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"PAYMENT_TIMEOUT" default:"10s"`
}

// Session is a checkout session handle issued by the processor. The
// terminal status arrives later through the callback boundary.
type Session struct {
	SessionID  string
	SessionURL string
}

type Processor interface {
	CreateSession(ctx context.Context, username string, amount decimal.Decimal, description string) (Session, error)
}

type client struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *client {
	return &client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.Named("payment"),
	}
}

func (c *client) CreateSession(ctx context.Context, username string, amount decimal.Decimal, description string) (Session, error) {
	body := map[string]any{
		"reference":   uuid.NewString(),
		"customer":    username,
		"amount":      amount.StringFixed(2),
		"currency":    c.cfg.Currency,
		"description": description,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return Session{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/checkout/sessions", bytes.NewReader(b))
	if err != nil {
		return Session{}, err
	}
	req.SetBasicAuth(c.cfg.APIKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Session{}, errors.Wrap(err, "create session")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return Session{}, errors.Errorf("create session: %s", resp.Status)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, errors.Wrap(err, "decode session")
	}
	if out.ID == "" {
		return Session{}, errors.New("empty session id")
	}

	c.log.Debug("session created", zap.String("sessionID", out.ID))
	return Session{SessionID: out.ID, SessionURL: out.URL}, nil
}
