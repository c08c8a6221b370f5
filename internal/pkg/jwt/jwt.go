package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinSecretLength is the shortest signing secret accepted at startup.
	MinSecretLength = 32
	// DefaultTTL is used when Issue is called with a zero ttl.
	DefaultTTL = 7 * 24 * time.Hour

	keyInfo = "authgate session token v1"
)

// Keys holds the signing secrets. Previous is only consulted by Verify and
// exists to keep sessions alive across a rotation.
type Keys struct {
	Current  string
	Previous string
}

// SessionPayload is the identity carried by a session token.
type SessionPayload struct {
	SubjectID   string    `json:"subject_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	ProfileURL  string    `json:"profile_url"`
	Email       string    `json:"email,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims is the JWT payload.
type Claims struct {
	Username    string `json:"usr,omitempty"`
	DisplayName string `json:"name,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
	ProfileURL  string `json:"profile,omitempty"`
	Email       string `json:"email,omitempty"`
	SessionID   string `json:"sid,omitempty"`
	jwtlib.RegisteredClaims
}

// Codec issues and verifies HS256 session tokens.
type Codec struct {
	current  []byte
	previous []byte
	ttl      time.Duration
	issuer   string
	now      func() time.Time
	parser   *jwtlib.Parser
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithIssuer sets and enforces the iss claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = strings.TrimSpace(issuer) }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// CheckSecret rejects empty or weak secrets.
func CheckSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return newError(KindConfig, "signing secret is not configured", nil)
	}
	if len(secret) < MinSecretLength {
		return newError(KindConfig, "signing secret is shorter than the minimum length", nil)
	}
	return nil
}

// NewCodec builds a codec from the configured secrets.
func NewCodec(keys Keys, opts ...Option) (*Codec, error) {
	if err := CheckSecret(keys.Current); err != nil {
		return nil, err
	}
	c := &Codec{
		current: deriveKey(keys.Current),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	if keys.Previous != "" {
		if err := CheckSecret(keys.Previous); err != nil {
			return nil, newError(KindConfig, "previous signing secret is invalid", err)
		}
		c.previous = deriveKey(keys.Previous)
	}
	for _, opt := range opts {
		opt(c)
	}

	parserOpts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwtlib.WithIssuer(c.issuer))
	}
	c.parser = jwtlib.NewParser(parserOpts...)
	return c, nil
}

// TTL returns the default token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue signs payload with the current key. IssuedAt and ExpiresAt are set
// from the codec clock; a zero ttl means the default TTL. The stamped payload
// is returned alongside the token.
func (c *Codec) Issue(p SessionPayload, ttl time.Duration) (string, SessionPayload, error) {
	if strings.TrimSpace(p.SubjectID) == "" {
		return "", SessionPayload{}, newError(KindInvalidPayload, "subject id is empty", nil)
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	now := c.now().UTC().Truncate(time.Second)
	p.IssuedAt = now
	p.ExpiresAt = now.Add(ttl)

	claims := Claims{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		ProfileURL:  p.ProfileURL,
		Email:       p.Email,
		SessionID:   p.SessionID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   p.SubjectID,
			Issuer:    c.issuer,
			IssuedAt:  jwtlib.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwtlib.NewNumericDate(p.ExpiresAt),
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(c.current)
	if err != nil {
		return "", SessionPayload{}, err
	}
	return token, p, nil
}

// Verify checks signature, shape and expiry, in that order. The MAC covers
// everything before the last dot, so any altered byte of a signed token,
// separators included, is a signature mismatch. Nothing is decoded before
// the signature matches.
func (c *Codec) Verify(token string) (*SessionPayload, error) {
	token = strings.TrimSpace(token)
	dot := strings.LastIndexByte(token, '.')
	if dot <= 0 || dot == len(token)-1 {
		return nil, newError(KindMalformed, "token has no signature segment", nil)
	}
	key := c.matchKey(token[:dot], token[dot+1:])
	if key == nil {
		return nil, newError(KindSignatureMismatch, "signature does not match", nil)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, newError(KindMalformed, "token must have three segments", nil)
	}

	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwtlib.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwtlib.ErrTokenExpired):
			return nil, newError(KindExpired, "token expired", err)
		case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
			return nil, newError(KindSignatureMismatch, "signature does not match", err)
		default:
			return nil, newError(KindMalformed, "token rejected", err)
		}
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, newError(KindMalformed, "required claims missing", nil)
	}

	return &SessionPayload{
		SubjectID:   claims.Subject,
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
		ProfileURL:  claims.ProfileURL,
		Email:       claims.Email,
		SessionID:   claims.SessionID,
		IssuedAt:    claims.IssuedAt.Time.UTC(),
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
	}, nil
}

func (c *Codec) matchKey(signingInput, signature string) []byte {
	for _, key := range [][]byte{c.current, c.previous} {
		if key == nil {
			continue
		}
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(signingInput))
		expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return key
		}
	}
	return nil
}

func deriveKey(secret string) []byte {
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails past 255*hash size
		panic(err)
	}
	return key
}
