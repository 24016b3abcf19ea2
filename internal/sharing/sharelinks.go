// Package sharing issues and verifies signed share links.
//
// A share link binds one relative path to an expiry time with an
// HMAC-SHA256 signature. Nothing is stored: a link is valid exactly when its
// signature recomputes under the server secret and it has not expired.
// Links cannot be revoked short of rotating the secret.
package sharing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Fabeuss/oasis/internal/fserr"
	"github.com/Fabeuss/oasis/internal/metrics"
)

// Token is an issued share link.
type Token struct {
	Path      string // relative to the storage root, not encoded
	ExpireAt  int64  // unix seconds, inclusive
	Signature string // lower-case hex HMAC-SHA256
}

// String renders the token as "hash=<sig>&expire=<expire>&path=<path>",
// ready to append to the share endpoint URL.
func (t Token) String() string {
	return "hash=" + t.Signature + "&" + canonical(t.Path, t.ExpireAt)
}

// Authority signs and checks share links with a process-wide secret.
// It is read-only after construction and safe for concurrent use.
type Authority struct {
	secret []byte
	maxTTL time.Duration
	now    func() time.Time
}

// Option configures an Authority.
type Option func(*Authority)

// WithMaxTTL caps how far in the future Issue accepts an expiry. Zero means
// no cap.
func WithMaxTTL(d time.Duration) Option {
	return func(a *Authority) { a.maxTTL = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// NewAuthority returns an Authority keyed by secret. The secret is copied.
func NewAuthority(secret []byte, opts ...Option) (*Authority, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("share link secret is empty")
	}
	a := &Authority{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Sign computes the hex signature for (path, expireAt). It has no side
// effects and applies no policy.
func (a *Authority) Sign(path string, expireAt int64) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(canonical(path, expireAt)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue returns a token for path expiring at expireAt. The expiry must be in
// the future and, when a maximum TTL is configured, within it.
func (a *Authority) Issue(path string, expireAt int64) (Token, error) {
	now := a.now().Unix()
	if expireAt <= now {
		return Token{}, fserr.Errorf(fserr.BadRequest, "share", "expiry %d is not in the future", expireAt)
	}
	if a.maxTTL > 0 && expireAt-now > int64(a.maxTTL/time.Second) {
		return Token{}, fserr.Errorf(fserr.BadRequest, "share", "expiry exceeds maximum ttl %s", a.maxTTL)
	}

	metrics.RecordShareIssued()
	return Token{
		Path:      path,
		ExpireAt:  expireAt,
		Signature: a.Sign(path, expireAt),
	}, nil
}

// Verify checks signature for (path, expireAt) in constant time and requires
// now <= expireAt. Bad signatures and expired links fail with the same
// BadRequest error so callers cannot tell which check failed.
func (a *Authority) Verify(path string, expireAt int64, signature string) error {
	got, err := hex.DecodeString(signature)
	valid := err == nil
	if valid {
		want, _ := hex.DecodeString(a.Sign(path, expireAt))
		valid = hmac.Equal(got, want)
	}
	valid = valid && a.now().Unix() <= expireAt

	metrics.RecordShareVerification(valid)
	if !valid {
		return fserr.E(fserr.BadRequest, "share", fserr.ErrShareLinkInvalid)
	}
	return nil
}

// VerifyQuery checks a share link given as raw query values: path, expire
// and hash. It returns the bound path on success.
func (a *Authority) VerifyQuery(q url.Values) (string, error) {
	path, expire, hash := q.Get("path"), q.Get("expire"), q.Get("hash")
	if expire == "" || hash == "" {
		return "", fserr.E(fserr.BadRequest, "share", fserr.ErrShareLinkInvalid)
	}
	expireAt, err := strconv.ParseInt(expire, 10, 64)
	if err != nil {
		return "", fserr.E(fserr.BadRequest, "share", fserr.ErrShareLinkInvalid)
	}
	if err := a.Verify(path, expireAt, hash); err != nil {
		return "", err
	}
	return path, nil
}

// EncodeComponent percent-encodes s leaving only ALPHA, DIGIT and "-._~"
// unescaped. Spaces become %20 and '/' becomes %2F.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// canonical is the signed message.
func canonical(path string, expireAt int64) string {
	return "expire=" + strconv.FormatInt(expireAt, 10) + "&path=" + EncodeComponent(path)
}
