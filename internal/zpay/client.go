// Package zpay is a client for the Z-Pay payment aggregator (alipay and
// wxpay channels).
package zpay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// TradeSuccess is the trade_status value of a settled notification.
const TradeSuccess = "TRADE_SUCCESS"

var (
	// ErrOrderNotFound indicates the provider has no such order.
	ErrOrderNotFound = errors.New("zpay: order not found")
	// ErrNotConfigured indicates missing merchant credentials.
	ErrNotConfigured = errors.New("zpay: merchant credentials not configured")
)

// Config holds merchant credentials and endpoints.
type Config struct {
	PID       string
	Key       string
	APIBase   string
	NotifyURL string
	ReturnURL string
}

// Client calls the Z-Pay merchant API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient constructs a Client.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	return &Client{cfg: cfg, client: httpClient}
}

// CreateOrderRequest describes a new order.
type CreateOrderRequest struct {
	OutTradeNo string
	Name       string
	Money      decimal.Decimal
	PayType    string
	ClientIP   string
	Param      string
}

// CreateOrderResponse carries what the client needs to pay.
type CreateOrderResponse struct {
	TradeNo string
	PayURL  string
	QRCode  string
}

// Order is the provider's view of an order.
type Order struct {
	OutTradeNo string
	TradeNo    string
	Type       string
	Name       string
	Money      decimal.Decimal
	Status     string
	Param      string
	Paid       bool
}

// CreateOrder registers an order through mapi.php.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if c.cfg.PID == "" || c.cfg.Key == "" {
		return nil, ErrNotConfigured
	}
	params := map[string]string{
		"pid":          c.cfg.PID,
		"type":         req.PayType,
		"out_trade_no": req.OutTradeNo,
		"notify_url":   c.cfg.NotifyURL,
		"return_url":   c.cfg.ReturnURL,
		"name":         req.Name,
		"money":        req.Money.StringFixed(2),
		"clientip":     req.ClientIP,
		"param":        req.Param,
	}
	params["sign"] = Sign(params, c.cfg.Key)
	params["sign_type"] = "MD5"

	form := url.Values{}
	for k, v := range params {
		if v != "" {
			form.Set(k, v)
		}
	}
	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/mapi.php", strings.NewReader(form.Encode()))
	if errReq != nil {
		return nil, fmt.Errorf("zpay: build request: %w", errReq)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, errDo := c.do(httpReq)
	if errDo != nil {
		return nil, errDo
	}
	if gjson.GetBytes(body, "code").Int() != 1 {
		return nil, fmt.Errorf("zpay: create order rejected: %s", gjson.GetBytes(body, "msg").String())
	}
	resp := &CreateOrderResponse{
		TradeNo: gjson.GetBytes(body, "trade_no").String(),
		PayURL:  gjson.GetBytes(body, "payurl").String(),
		QRCode:  gjson.GetBytes(body, "qrcode").String(),
	}
	if resp.QRCode == "" {
		resp.QRCode = gjson.GetBytes(body, "img").String()
	}
	return resp, nil
}

// QueryOrder looks an order up through api.php?act=order.
func (c *Client) QueryOrder(ctx context.Context, outTradeNo string) (*Order, error) {
	if c.cfg.PID == "" || c.cfg.Key == "" {
		return nil, ErrNotConfigured
	}
	query := url.Values{}
	query.Set("act", "order")
	query.Set("pid", c.cfg.PID)
	query.Set("key", c.cfg.Key)
	query.Set("out_trade_no", outTradeNo)
	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIBase+"/api.php?"+query.Encode(), nil)
	if errReq != nil {
		return nil, fmt.Errorf("zpay: build request: %w", errReq)
	}

	body, errDo := c.do(httpReq)
	if errDo != nil {
		return nil, errDo
	}
	if gjson.GetBytes(body, "code").Int() != 1 {
		return nil, ErrOrderNotFound
	}
	status := gjson.GetBytes(body, "status")
	money, _ := decimal.NewFromString(gjson.GetBytes(body, "money").String())
	return &Order{
		OutTradeNo: gjson.GetBytes(body, "out_trade_no").String(),
		TradeNo:    gjson.GetBytes(body, "trade_no").String(),
		Type:       gjson.GetBytes(body, "type").String(),
		Name:       gjson.GetBytes(body, "name").String(),
		Money:      money,
		Status:     status.String(),
		Param:      gjson.GetBytes(body, "param").String(),
		Paid:       IsPaidStatus(status.Value()),
	}, nil
}

// VerifyNotify checks a notification's signature and merchant id.
func (c *Client) VerifyNotify(params map[string]string) bool {
	if params["pid"] != "" && params["pid"] != c.cfg.PID {
		return false
	}
	return Verify(params, c.cfg.Key)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, errDo := c.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("zpay: request: %w", errDo)
	}
	defer resp.Body.Close()
	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return nil, fmt.Errorf("zpay: read response: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zpay: http %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("zpay: invalid json response")
	}
	return body, nil
}
