package address

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
)

const (
	PaymentLinkScheme = "sipprotocol"
	paymentLinkHost   = "pay"
)

var ErrMalformedPaymentLink = errors.New("malformed payment link")

// PaymentRequest is the content of a sipprotocol://pay deep link. Nil
// optional fields mean "unspecified", never zero.
type PaymentRequest struct {
	Address string
	Amount  *string
	Token   *string
	Memo    *string
}

// FormatPaymentRequest renders r as a deep link.
func FormatPaymentRequest(r PaymentRequest) string {
	q := url.Values{}
	q.Set("address", r.Address)
	if r.Amount != nil {
		q.Set("amount", *r.Amount)
	}
	if r.Token != nil {
		q.Set("token", *r.Token)
	}
	if r.Memo != nil {
		q.Set("memo", *r.Memo)
	}
	u := url.URL{
		Scheme:   PaymentLinkScheme,
		Host:     paymentLinkHost,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// ParsePaymentRequest parses a deep link. An empty optional parameter is
// treated the same as an absent one.
func ParsePaymentRequest(link string) (PaymentRequest, error) {
	u, err := url.Parse(link)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("%w: %v", ErrMalformedPaymentLink, err)
	}
	if u.Scheme != PaymentLinkScheme || u.Host != paymentLinkHost {
		return PaymentRequest{}, fmt.Errorf("%w: expected %s://%s", ErrMalformedPaymentLink, PaymentLinkScheme, paymentLinkHost)
	}

	q := u.Query()
	req := PaymentRequest{Address: q.Get("address")}
	if req.Address == "" {
		return PaymentRequest{}, fmt.Errorf("%w: address is required", ErrMalformedPaymentLink)
	}

	optional := func(key string) *string {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		return &v
	}
	req.Amount = optional("amount")
	req.Token = optional("token")
	req.Memo = optional("memo")

	if req.Amount != nil {
		r, ok := new(big.Rat).SetString(*req.Amount)
		if !ok || r.Sign() < 0 {
			return PaymentRequest{}, fmt.Errorf("%w: invalid amount %q", ErrMalformedPaymentLink, *req.Amount)
		}
	}
	return req, nil
}
