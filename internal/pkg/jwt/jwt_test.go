package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret     = "0123456789abcdef0123456789abcdef-current"
	testPrevSecret = "0123456789abcdef0123456789abcdef-previous"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func samplePayload() SessionPayload {
	return SessionPayload{
		SubjectID:   "583231",
		Username:    "octocat",
		DisplayName: "The Octocat",
		AvatarURL:   "https://avatars.githubusercontent.com/u/583231?v=4",
		ProfileURL:  "https://github.com/octocat",
		Email:       "octocat@github.com",
		SessionID:   "3f6c1a52-5d0e-4f43-9c43-0d4b5e2f7a10",
	}
}

func TestNewCodecRejectsWeakSecrets(t *testing.T) {
	_, err := NewCodec(Keys{})
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewCodec(Keys{Current: "short"})
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewCodec(Keys{Current: testSecret, Previous: "short"})
	require.ErrorIs(t, err, ErrConfig)
}

func TestIssueRequiresSubject(t *testing.T) {
	c, err := NewCodec(Keys{Current: testSecret})
	require.NoError(t, err)

	p := samplePayload()
	p.SubjectID = "  "
	_, _, err = c.Issue(p, time.Hour)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := NewCodec(Keys{Current: testSecret}, WithClock(fixedClock(now)), WithIssuer("authgate"))
	require.NoError(t, err)

	ttls := []time.Duration{time.Second, time.Hour, 30 * 24 * time.Hour}
	for _, ttl := range ttls {
		token, issued, err := c.Issue(samplePayload(), ttl)
		require.NoError(t, err)
		assert.Equal(t, now, issued.IssuedAt)
		assert.Equal(t, now.Add(ttl), issued.ExpiresAt)

		got, err := c.Verify(token)
		require.NoError(t, err)
		if diff := cmp.Diff(issued, *got); diff != "" {
			t.Fatalf("payload mismatch for ttl %s (-want +got):\n%s", ttl, diff)
		}
	}
}

func TestIssueZeroTTLUsesDefault(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := NewCodec(Keys{Current: testSecret}, WithClock(fixedClock(now)), WithTTL(2*time.Hour))
	require.NoError(t, err)

	_, issued, err := c.Issue(samplePayload(), 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), issued.ExpiresAt)
}

func TestTamperDetection(t *testing.T) {
	c, err := NewCodec(Keys{Current: testSecret})
	require.NoError(t, err)

	token, _, err := c.Issue(samplePayload(), time.Hour)
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		flipped := []byte(token)
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}
		_, err := c.Verify(string(flipped))
		require.Errorf(t, err, "flip at %d verified", i)
		assert.Equalf(t, KindSignatureMismatch, KindOf(err), "flip at %d", i)
	}
}

func TestForeignSecretIsSignatureMismatch(t *testing.T) {
	issuer, err := NewCodec(Keys{Current: strings.Repeat("x", MinSecretLength)})
	require.NoError(t, err)
	verifier, err := NewCodec(Keys{Current: testSecret})
	require.NoError(t, err)

	token, _, err := issuer.Issue(samplePayload(), time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestExpired(t *testing.T) {
	c, err := NewCodec(Keys{Current: testSecret})
	require.NoError(t, err)

	token, _, err := c.Issue(samplePayload(), -time.Second)
	require.NoError(t, err)

	_, err = c.Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestExpiryBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	c, err := NewCodec(Keys{Current: testSecret}, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	token, _, err := c.Issue(samplePayload(), time.Minute)
	require.NoError(t, err)

	clock = now.Add(time.Minute - time.Second)
	_, err = c.Verify(token)
	require.NoError(t, err)

	clock = now.Add(time.Minute)
	_, err = c.Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestMalformed(t *testing.T) {
	c, err := NewCodec(Keys{Current: testSecret})
	require.NoError(t, err)

	for _, raw := range []string{"", "abc", "abc.", ".abc"} {
		_, err := c.Verify(raw)
		assert.Equalf(t, KindMalformed, KindOf(err), "token %q", raw)
	}

	// correctly signed input with the wrong number of segments
	sign := func(input string) string {
		mac := hmac.New(sha256.New, deriveKey(testSecret))
		mac.Write([]byte(input))
		return input + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	}
	for _, input := range []string{"a", "a.b.c", ".b"} {
		_, err := c.Verify(sign(input))
		assert.Equalf(t, KindMalformed, KindOf(err), "signed %q", input)
	}

	for _, raw := range []string{"a.b", "a..c", "a.b.c.d"} {
		_, err := c.Verify(raw)
		assert.Equalf(t, KindSignatureMismatch, KindOf(err), "token %q", raw)
	}
}

func TestRotation(t *testing.T) {
	old, err := NewCodec(Keys{Current: testPrevSecret})
	require.NoError(t, err)
	token, _, err := old.Issue(samplePayload(), time.Hour)
	require.NoError(t, err)

	rotated, err := NewCodec(Keys{Current: testSecret, Previous: testPrevSecret})
	require.NoError(t, err)
	got, err := rotated.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "583231", got.SubjectID)

	fresh, _, err := rotated.Issue(samplePayload(), time.Hour)
	require.NoError(t, err)
	_, err = old.Verify(fresh)
	require.ErrorIs(t, err, ErrSignatureMismatch, "new tokens must be signed with the current secret only")

	retired, err := NewCodec(Keys{Current: testSecret})
	require.NoError(t, err)
	_, err = retired.Verify(token)
	require.ErrorIs(t, err, ErrSignatureMismatch)
}
