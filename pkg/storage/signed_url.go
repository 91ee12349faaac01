package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid covers malformed or tampered tokens.
	ErrTokenInvalid = errors.New("invalid download token")
	// ErrTokenExpired is returned for authentic tokens past their expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadClaims is the data carried by a download token.
type DownloadClaims struct {
	ExportID  string
	Path      string
	ExpiresAt time.Time
}

// URLSigner issues and verifies HMAC signed download tokens.
type URLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewURLSigner constructs a signer. A non-positive ttl defaults to one day.
func NewURLSigner(secret string, ttl time.Duration) *URLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &URLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the signer's time source.
func (s *URLSigner) WithClock(now func() time.Time) *URLSigner {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL reports how long issued tokens stay valid.
func (s *URLSigner) TTL() time.Duration {
	return s.ttl
}

// Sign returns a token granting access to path on behalf of exportID.
func (s *URLSigner) Sign(exportID, path string) (string, time.Time, error) {
	if exportID == "" || path == "" {
		return "", time.Time{}, fmt.Errorf("export id and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	body := base64.RawURLEncoding.EncodeToString(
		[]byte(exportID + "\n" + strconv.FormatInt(expiresAt.Unix(), 10) + "\n" + path),
	)
	return body + "." + s.sign(body), expiresAt, nil
}

// Verify checks the signature and expiry of token.
func (s *URLSigner) Verify(token string) (DownloadClaims, error) {
	body, signature, ok := strings.Cut(token, ".")
	if !ok || body == "" || signature == "" || len(s.secret) == 0 {
		return DownloadClaims{}, ErrTokenInvalid
	}
	if !hmac.Equal([]byte(s.sign(body)), []byte(signature)) {
		return DownloadClaims{}, ErrTokenInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return DownloadClaims{}, ErrTokenInvalid
	}
	parts := strings.SplitN(string(raw), "\n", 3)
	if len(parts) != 3 {
		return DownloadClaims{}, ErrTokenInvalid
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return DownloadClaims{}, ErrTokenInvalid
	}
	claims := DownloadClaims{ExportID: parts[0], Path: parts[2], ExpiresAt: time.Unix(unix, 0).UTC()}
	if !s.now().Before(claims.ExpiresAt) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (s *URLSigner) sign(body string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
