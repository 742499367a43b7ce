package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header PayMongo signs webhook deliveries with.
const SignatureHeader = "Paymongo-Signature"

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleSignature   = errors.New("webhook signature timestamp outside tolerance")
)

// Verifier checks "t=<unix>,te=<hex>,li=<hex>" signatures computed as
// HMAC-SHA256(secret, t + "." + body).
type Verifier struct {
	secret    []byte
	liveMode  bool
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier. A zero tolerance defaults to five minutes.
func NewVerifier(secret string, liveMode bool, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{
		secret:    []byte(secret),
		liveMode:  liveMode,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Enabled reports whether a webhook secret is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify validates header against body.
func (v *Verifier) Verify(header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}

	var ts, test, live string
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "te":
			test = val
		case "li":
			live = val
		}
	}

	sig := test
	if v.liveMode {
		sig = live
	}
	if ts == "" || sig == "" {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if age := v.now().Sub(time.Unix(unix, 0)); age > v.tolerance || age < -v.tolerance {
		return ErrStaleSignature
	}

	expected := v.sign(ts, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces a header for body at time t, mainly for tests and tooling.
func (v *Verifier) Sign(t time.Time, body []byte) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	sig := v.sign(ts, body)
	if v.liveMode {
		return fmt.Sprintf("t=%s,te=,li=%s", ts, sig)
	}
	return fmt.Sprintf("t=%s,te=%s,li=", ts, sig)
}

func (v *Verifier) sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
