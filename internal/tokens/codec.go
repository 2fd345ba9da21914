package tokens

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	ClaimSubject = "sub"
	ClaimExpiry  = "exp"
)

// Claims is the decoded payload of a token
type Claims map[string]interface{}

// Subject returns the "sub" claim, or "" when absent or not a string
func (c Claims) Subject() string {
	sub, _ := c[ClaimSubject].(string)
	return sub
}

// ExpiresAt returns the "exp" claim in unix seconds
func (c Claims) ExpiresAt() (int64, bool) {
	switch v := c[ClaimExpiry].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	default:
		return 0, false
	}
}

// Codec signs and verifies compact HMAC tokens
type Codec struct {
	secret    []byte
	algorithm string
	now       func() time.Time
}

// NewCodec builds a codec; configuration problems surface on first use
func NewCodec(secret, algorithm string) *Codec {
	return &Codec{
		secret:    []byte(secret),
		algorithm: algorithm,
		now:       time.Now,
	}
}

// WithClock replaces the time source, used by tests to age tokens
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

func (c *Codec) signingMethod() (*jwt.SigningMethodHMAC, error) {
	if len(c.secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret is empty", ErrConfiguration)
	}
	if c.algorithm == "" {
		return nil, fmt.Errorf("%w: signing algorithm is empty", ErrConfiguration)
	}
	method, ok := jwt.GetSigningMethod(c.algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported signing algorithm %q", ErrConfiguration, c.algorithm)
	}
	return method, nil
}

// Encode copies claims, sets exp = now + ttl and signs the result
func (c *Codec) Encode(claims map[string]interface{}, ttl time.Duration) (string, error) {
	method, err := c.signingMethod()
	if err != nil {
		return "", err
	}

	payload := make(jwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		payload[k] = v
	}
	payload[ClaimExpiry] = c.now().UTC().Add(ttl).Unix()

	signed, err := jwt.NewWithClaims(method, payload).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of token and returns its claims.
// A token whose exp equals the current second is already expired.
func (c *Codec) Decode(token string) (Claims, error) {
	method, err := c.signingMethod()
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithJSONNumber(),
		jwt.WithoutClaimsValidation(),
	)

	parsed, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	claims := Claims(mapClaims)

	exp, ok := claims.ExpiresAt()
	if !ok {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	if exp <= c.now().UTC().Unix() {
		return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	claims[ClaimExpiry] = exp

	return claims, nil
}
