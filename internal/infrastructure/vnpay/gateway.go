// Package vnpay integrates the VNPay hosted-payment flow: building the
// signed redirect URL that hands an order to the gateway, and verifying
// the asynchronous IPN callback the gateway delivers at least once.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/greengrove/plantshop/internal/domain/order"
)

// amountScale converts between the application's minor currency units and
// the gateway's wire amount (provider convention: amount × 100).
const amountScale = 100

const (
	paramPrefix       = "vnp_"
	paramSecureHash   = "vnp_SecureHash"
	paramSecureType   = "vnp_SecureHashType"
	paramTxnRef       = "vnp_TxnRef"
	paramAmount       = "vnp_Amount"
	paramResponseCode = "vnp_ResponseCode"

	responseCodeSuccess = "00"
	createDateLayout    = "20060102150405"
)

var (
	ErrMissingSecret    = errors.New("vnpay: hash secret is not configured")
	ErrInvalidSignature = errors.New("vnpay: signature mismatch")
)

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

type Gateway struct {
	cfg Config
	now func() time.Time
}

func NewGateway(cfg Config) *Gateway {
	return &Gateway{cfg: cfg, now: time.Now}
}

// WithClock fixes the timestamp source; used by tests to make the signed
// parameter set reproducible.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// CreatePaymentURL assembles the provider parameter set for an order and
// returns the redirect URL with the keyed signature appended. The
// signature is computed over the canonical (sorted, percent-encoded)
// parameter string, the same encoding verification recomputes.
func (g *Gateway) CreatePaymentURL(o *order.Order, clientIP string) (string, error) {
	if g.cfg.HashSecret == "" {
		return "", ErrMissingSecret
	}
	if o == nil || o.ID == "" {
		return "", errors.New("vnpay: order is required")
	}

	params := url.Values{}
	params.Set("vnp_Version", "2.1.0")
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set(paramAmount, strconv.FormatInt(o.TotalAmount*amountScale, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set(paramTxnRef, o.ID)
	params.Set("vnp_OrderInfo", fmt.Sprintf("Payment for order %s", o.ID))
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", clientIP)
	params.Set("vnp_CreateDate", g.now().Format(createDateLayout))

	encoded := params.Encode()
	signed := encoded + "&" + paramSecureHash + "=" + g.sign(encoded)
	return g.cfg.PayURL + "?" + signed, nil
}

// Callback is the transient verification context extracted from one IPN
// delivery. It is never persisted.
type Callback struct {
	TxnRef string
	// Amount is already unscaled back to the application's currency unit.
	Amount  int64
	Success bool
}

// VerifyCallback authenticates raw IPN parameters. It recomputes the
// signature over every provider-namespaced parameter except the signature
// fields themselves, using the canonical encoding. Any mismatch fails
// before a single field is interpreted.
func (g *Gateway) VerifyCallback(raw url.Values) (*Callback, error) {
	if g.cfg.HashSecret == "" {
		return nil, ErrMissingSecret
	}

	provided := raw.Get(paramSecureHash)
	if provided == "" {
		return nil, ErrInvalidSignature
	}

	signable := url.Values{}
	for key, values := range raw {
		if key == paramSecureHash || key == paramSecureType {
			continue
		}
		if len(key) < len(paramPrefix) || key[:len(paramPrefix)] != paramPrefix {
			continue
		}
		for _, v := range values {
			signable.Add(key, v)
		}
	}

	expected := g.sign(signable.Encode())
	if !hmac.Equal([]byte(expected), []byte(normalizeHex(provided))) {
		return nil, ErrInvalidSignature
	}

	scaled, err := strconv.ParseInt(raw.Get(paramAmount), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("vnpay: parse amount %q: %w", raw.Get(paramAmount), err)
	}

	return &Callback{
		TxnRef:  raw.Get(paramTxnRef),
		Amount:  scaled / amountScale,
		Success: raw.Get(paramResponseCode) == responseCodeSuccess,
	}, nil
}

// SignParams returns a copy of params with the secure-hash field appended,
// computed the same way VerifyCallback recomputes it. Return-URL
// verification and callback construction both use it.
func (g *Gateway) SignParams(params url.Values) url.Values {
	signed := url.Values{}
	for key, values := range params {
		for _, v := range values {
			signed.Add(key, v)
		}
	}
	signable := url.Values{}
	for key, values := range signed {
		if key == paramSecureHash || key == paramSecureType {
			continue
		}
		if len(key) >= len(paramPrefix) && key[:len(paramPrefix)] == paramPrefix {
			for _, v := range values {
				signable.Add(key, v)
			}
		}
	}
	signed.Set(paramSecureHash, g.sign(signable.Encode()))
	return signed
}

func (g *Gateway) sign(encoded string) string {
	mac := hmac.New(sha512.New, []byte(g.cfg.HashSecret))
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizeHex lowercases a hex digest; some gateway configurations send
// the signature uppercased.
func normalizeHex(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'F' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
