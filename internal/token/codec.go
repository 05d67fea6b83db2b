package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
)

// CurrentVersion is stamped into every payload signed by this codec.
const CurrentVersion = 1

// Payload is the ticket snapshot carried by a token. Field order is the wire
// order and must not change.
type Payload struct {
	TicketID     string  `json:"ticketId"`
	EventID      string  `json:"eventId"`
	UserID       string  `json:"userId"`
	TicketNumber string  `json:"ticketNumber"`
	Price        float64 `json:"price"`
	CreatedAt    int64   `json:"createdAt"`
	Timestamp    int64   `json:"timestamp"`
	Version      int     `json:"version"`
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// Codec signs and verifies entry tokens with a single process-wide secret.
type Codec struct {
	secret []byte
}

func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "empty token secret")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Codec{secret: key}, nil
}

// Sign returns base64(JSON{data, signature}) where signature is the hex
// HMAC-SHA256 of the serialized data.
func (c *Codec) Sign(p Payload) (string, error) {
	data, err := encode(p)
	if err != nil {
		return "", errors.Wrap(err, "marshal token payload")
	}
	wrapped, err := encode(envelope{Data: data, Signature: hex.EncodeToString(c.mac(data))})
	if err != nil {
		return "", errors.Wrap(err, "marshal token envelope")
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// Verify returns the payload only when the token is exactly what Sign would
// produce for it. Every decode failure is reported as ErrInvalidSignature.
func (c *Codec) Verify(tok string) (Payload, error) {
	raw, err := base64.StdEncoding.Strict().DecodeString(tok)
	if err != nil {
		return Payload{}, domain.ErrInvalidSignature
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Payload{}, domain.ErrInvalidSignature
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return Payload{}, domain.ErrInvalidSignature
	}
	if !hmac.Equal(sig, c.mac(env.Data)) {
		return Payload{}, domain.ErrInvalidSignature
	}
	var p Payload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return Payload{}, domain.ErrInvalidSignature
	}

	// json and base64 decoding both tolerate variants (key case, whitespace,
	// line breaks); only the canonical encoding is accepted.
	canonical, err := c.Sign(p)
	if err != nil || !hmac.Equal([]byte(canonical), []byte(tok)) {
		return Payload{}, domain.ErrInvalidSignature
	}
	return p, nil
}

func (c *Codec) mac(data []byte) []byte {
	h := hmac.New(sha256.New, c.secret)
	h.Write(data)
	return h.Sum(nil)
}

// encode matches JSON.stringify output: compact, no HTML escaping.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Hash is the forensic fingerprint stored instead of the raw token.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
