package telebirr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/enutrac/payments/internal/pkg/env"
	"github.com/enutrac/payments/internal/pkg/gateway"
	"github.com/gofiber/fiber/v2/log"
)

const (
	ModeSandbox    = "sandbox"
	ModeProduction = "production"

	sandboxBaseURL         = "https://196.188.120.3:38443/apiaccess/payment/gateway"
	sandboxCheckoutBaseURL = "https://196.188.120.3:38443/payment/web/paygate"
	prodBaseURL            = "https://api.ethiotelebirr.et"
	prodCheckoutBaseURL    = "https://portal.ethiotelebirr.et/payment/web/paygate"

	tradeStatusCompleted = "Completed"
	tradeStatusSuccess   = "TRADE_SUCCESS"
)

// Config holds everything needed to talk to the Telebirr gateway.
type Config struct {
	AppID         string // sent as X-APP-Key
	AppSecret     string
	MerchantID    string // the "appid" field of biz_content
	MerchantCode  string
	PrivateKeyPEM string
	PublicKeyPEM  string
	NotifyURL     string
	Mode          string // sandbox or production

	// BaseURL/CheckoutBaseURL override the mode defaults (used by tests).
	BaseURL         string
	CheckoutBaseURL string

	// InsecureSkipTLSVerify relaxes certificate validation. It is only
	// honored in sandbox mode; NewClient refuses it anywhere else.
	InsecureSkipTLSVerify bool
}

// Client implements gateway.Gateway over Telebirr's signed-REST protocol.
type Client struct {
	cfg      Config
	signer   *Signer
	verifier *Verifier
	http     *http.Client
}

// NewClient validates the config and builds the client. Relaxed TLS in any
// non-sandbox mode is a construction-time error, so a production client can
// never be created with certificate validation disabled.
func NewClient(cfg Config) (*Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeSandbox
	}
	if mode != ModeSandbox && mode != ModeProduction {
		return nil, fmt.Errorf("unknown telebirr mode %q", cfg.Mode)
	}
	cfg.Mode = mode

	if cfg.InsecureSkipTLSVerify && mode != ModeSandbox {
		return nil, errors.New("relaxed TLS verification is restricted to sandbox mode")
	}

	if cfg.BaseURL == "" {
		if mode == ModeSandbox {
			cfg.BaseURL = sandboxBaseURL
		} else {
			cfg.BaseURL = prodBaseURL
		}
	}
	if cfg.CheckoutBaseURL == "" {
		if mode == ModeSandbox {
			cfg.CheckoutBaseURL = sandboxCheckoutBaseURL
		} else {
			cfg.CheckoutBaseURL = prodCheckoutBaseURL
		}
	}

	signer, err := NewSignerFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("telebirr private key: %w", err)
	}
	verifier, err := NewVerifierFromPEM(cfg.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("telebirr public key: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if cfg.InsecureSkipTLSVerify && mode == ModeSandbox {
		// Sandbox endpoint is an IP address with a self-signed cert.
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		cfg:      cfg,
		signer:   signer,
		verifier: verifier,
		http:     httpClient,
	}, nil
}

// NewClientFromEnv builds a client from TELEBIRR_* environment variables.
func NewClientFromEnv() (*Client, error) {
	mode := env.GetEnv("TELEBIRR_MODE", ModeSandbox)
	return NewClient(Config{
		AppID:                 env.GetEnv("TELEBIRR_APP_ID", ""),
		AppSecret:             env.GetEnv("TELEBIRR_APP_SECRET", ""),
		MerchantID:            env.GetEnv("TELEBIRR_MERCHANT_ID", ""),
		MerchantCode:          env.GetEnv("TELEBIRR_MERCHANT_CODE", ""),
		PrivateKeyPEM:         env.GetEnv("TELEBIRR_PRIVATE_KEY", ""),
		PublicKeyPEM:          env.GetEnv("TELEBIRR_PUBLIC_KEY", ""),
		NotifyURL:             env.GetEnv("TELEBIRR_NOTIFY_URL", ""),
		Mode:                  mode,
		InsecureSkipTLSVerify: mode == ModeSandbox && env.GetEnv("TELEBIRR_INSECURE_TLS", "false") == "true",
	})
}

func (c *Client) Name() string {
	return "telebirr"
}

type tokenResponse struct {
	Token string `json:"token"`
}

// getToken exchanges the app secret for a short-lived bearer token. Tokens
// are intentionally not cached across orders.
func (c *Client) getToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{"appSecret": c.cfg.AppSecret})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/payment/v1/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-APP-Key", c.cfg.AppID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", &gateway.RejectedError{Status: resp.StatusCode, Reason: string(raw)}
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: token endpoint returned %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &gateway.ProtocolError{RawBody: string(raw), Err: err}
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", &gateway.ProtocolError{RawBody: string(raw), Err: errors.New("token missing in response")}
	}
	return out.Token, nil
}

var (
	nonAlnumRe      = regexp.MustCompile(`[^A-Za-z0-9]`)
	forbiddenTitleR = regexp.MustCompile("[~`!#$%^*()\\-=+|/<>?;:\"\\[\\]{}\\\\&]")
)

type preorderResponse struct {
	Code       string `json:"code"`
	Msg        string `json:"msg"`
	BizContent struct {
		PrepayID string `json:"prepay_id"`
	} `json:"biz_content"`
}

// CreateCheckout runs the full preorder flow: token exchange, signed
// preorder request, then signed checkout URL construction. Telebirr only
// offers a hosted checkout page.
func (c *Client) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResult, error) {
	if req.Mode == gateway.ModeEmbedded {
		return nil, errors.New("telebirr does not support embedded checkout")
	}

	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	prepayID, err := c.createPreorder(ctx, token, req)
	if err != nil {
		return nil, err
	}

	checkoutURL, err := c.buildCheckoutURL(prepayID)
	if err != nil {
		return nil, err
	}

	return &gateway.CheckoutResult{
		SessionID:   prepayID,
		CheckoutURL: checkoutURL,
	}, nil
}

func (c *Client) createPreorder(ctx context.Context, token string, req gateway.CheckoutRequest) (string, error) {
	nonce, err := nonceString(32)
	if err != nil {
		return "", err
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	title := forbiddenTitleR.ReplaceAllString("Plan "+req.PlanName, "")
	bizContent := map[string]string{
		"appid":           c.cfg.MerchantID,
		"merch_code":      c.cfg.MerchantCode,
		"merch_order_id":  nonAlnumRe.ReplaceAllString(req.ExternalOrderID, ""),
		"trade_type":      "Checkout",
		"title":           title,
		"total_amount":    strconv.FormatFloat(req.Amount, 'f', 2, 64),
		"trans_currency":  req.Currency,
		"timeout_express": "120m",
		"business_type":   "BuyGoods",
		"notify_url":      c.cfg.NotifyURL,
		"redirect_url":    req.ReturnURL,
		"callback_info":   "From web",
	}
	envelope := map[string]string{
		"timestamp": timestamp,
		"nonce_str": nonce,
		"method":    "payment.preorder",
		"version":   "1.0",
	}

	flat, err := flattenForSign(envelope, bizContent)
	if err != nil {
		return "", err
	}
	signature, err := c.signer.Sign(buildSignString(flat))
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]interface{}{
		"timestamp":   timestamp,
		"nonce_str":   nonce,
		"method":      "payment.preorder",
		"version":     "1.0",
		"biz_content": bizContent,
		"sign":        signature,
		"sign_type":   SignType,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/payment/v1/merchant/preOrder", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-APP-Key", c.cfg.AppID)
	httpReq.Header.Set("Authorization", token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: preorder: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	// Read the raw body first; decoding is a separate stage so a broken
	// response is reported with its payload instead of as an empty result.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", &gateway.RejectedError{Status: resp.StatusCode, Reason: string(raw)}
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: preorder endpoint returned %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	var parsed preorderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &gateway.ProtocolError{RawBody: string(raw), Err: err}
	}
	if parsed.BizContent.PrepayID == "" {
		return "", &gateway.ProtocolError{RawBody: string(raw), Err: errors.New("missing biz_content.prepay_id")}
	}

	log.Infof("[Telebirr] preorder created, prepay_id=%s", parsed.BizContent.PrepayID)
	return parsed.BizContent.PrepayID, nil
}

// buildCheckoutURL signs the reduced checkout field set with a fresh nonce
// and timestamp, then appends the fixed protocol parameters.
func (c *Client) buildCheckoutURL(prepayID string) (string, error) {
	nonce, err := nonceString(32)
	if err != nil {
		return "", err
	}

	fields := map[string]string{
		"appid":      c.cfg.MerchantID,
		"merch_code": c.cfg.MerchantCode,
		"nonce_str":  nonce,
		"prepay_id":  prepayID,
		"timestamp":  strconv.FormatInt(time.Now().Unix(), 10),
	}
	signature, err := c.signer.Sign(buildSignString(fields))
	if err != nil {
		return "", err
	}

	params := url.Values{}
	for k, v := range fields {
		params.Set(k, v)
	}
	params.Set("sign", signature)
	params.Set("sign_type", SignType)

	return c.cfg.CheckoutBaseURL + "?" + params.Encode() + "&version=1.0&trade_type=Checkout", nil
}

// VerifyCallback recomputes the signing string over the callback payload
// (minus signature fields) and verifies it against the provider public key.
// Every failure path collapses into ErrSignatureInvalid: a delivery that
// cannot be verified is treated as forged, never as valid.
func (c *Client) VerifyCallback(rawBody []byte, headers map[string]string) (*gateway.VerifiedEvent, error) {
	fields, err := decodeCallbackFields(rawBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrSignatureInvalid, err)
	}

	signature := fields["sign"]
	if fields["sign_type"] != SignType {
		return nil, fmt.Errorf("%w: unexpected sign_type %q", gateway.ErrSignatureInvalid, fields["sign_type"])
	}
	delete(fields, "sign")
	delete(fields, "sign_type")

	if err := c.verifier.Verify(buildSignString(fields), signature); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrSignatureInvalid, err)
	}

	outcome := gateway.OutcomeFailed
	switch fields["trade_status"] {
	case tradeStatusCompleted, tradeStatusSuccess:
		outcome = gateway.OutcomeCompleted
	}

	return &gateway.VerifiedEvent{
		ExternalOrderID: fields["merch_order_id"],
		Outcome:         outcome,
		ExternalTxID:    fields["trans_id"],
	}, nil
}

// decodeCallbackFields flattens the callback JSON into strings without
// losing numeric precision (amounts arrive as JSON numbers).
func decodeCallbackFields(rawBody []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(rawBody))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode callback body: %w", err)
	}

	fields := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		case bool:
			fields[k] = strconv.FormatBool(val)
		case nil:
			// absent values are not signed
		default:
			return nil, fmt.Errorf("unexpected nested value in callback field %q", k)
		}
	}
	return fields, nil
}
