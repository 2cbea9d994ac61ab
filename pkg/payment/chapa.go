package payment

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChapaConfig Chapa 渠道配置
type ChapaConfig struct {
	BaseURL     string
	SecretKey   string
	Currency    string
	CallbackURL string
	ReturnURL   string
	Timeout     time.Duration
}

// Chapa 通过 transaction/initialize 接口创建支付
type Chapa struct {
	cfg    ChapaConfig
	client *http.Client
}

func NewChapa(cfg ChapaConfig) *Chapa {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "ETB"
	}
	return &Chapa{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (*Chapa) Name() string { return "chapa" }

func (c *Chapa) Currency() string { return c.cfg.Currency }

type chapaCustomization struct {
	Title string `json:"title,omitempty"`
}

type chapaInitRequest struct {
	Amount        string             `json:"amount"`
	Currency      string             `json:"currency"`
	TxRef         string             `json:"tx_ref"`
	CallbackURL   string             `json:"callback_url,omitempty"`
	ReturnURL     string             `json:"return_url,omitempty"`
	Customization chapaCustomization `json:"customization"`
}

type chapaInitResponse struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    *struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// CreatePayment tx_ref 作为渠道支付 ID，回调时据此找回支付记录
func (c *Chapa) CreatePayment(ctx context.Context, orderRef string, amount decimal.Decimal) (*Result, error) {
	txRef := uuid.NewString()

	body := chapaInitRequest{
		Amount:        amount.StringFixed(2),
		Currency:      c.cfg.Currency,
		TxRef:         txRef,
		CallbackURL:   c.cfg.CallbackURL,
		ReturnURL:     c.cfg.ReturnURL,
		Customization: chapaCustomization{Title: orderRef},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Provider: c.Name(), Message: "encode payment request", Err: err}
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/transaction/initialize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Provider: c.Name(), Message: "build payment request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		msg := "payment provider is unreachable"
		if IsTimeout(err) || isNetTimeout(err) {
			msg = "payment provider timed out"
		}
		return nil, &Error{Provider: c.Name(), Message: msg, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Provider: c.Name(), Message: "read payment response", Err: err}
	}

	var out chapaInitResponse
	decodeErr := json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 500:
		return nil, &Error{Provider: c.Name(), Message: fmt.Sprintf("payment provider returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		msg := providerMessage(out.Message)
		if msg == "" {
			msg = fmt.Sprintf("payment provider rejected the request (%d)", resp.StatusCode)
		}
		return nil, &Error{Provider: c.Name(), Message: msg, Rejected: true}
	case decodeErr != nil:
		return nil, &Error{Provider: c.Name(), Message: "malformed payment response", Err: decodeErr}
	case out.Data == nil || out.Data.CheckoutURL == "":
		return nil, &Error{Provider: c.Name(), Message: "payment response has no checkout url"}
	}
	return &Result{ProviderPaymentID: txRef, PaymentURL: out.Data.CheckoutURL}, nil
}

// providerMessage message 字段可能是字符串也可能是字段错误对象
func providerMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNetTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
