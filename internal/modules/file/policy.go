package file

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Policy is a signed permission to upload one object.
type Policy struct {
	Name    string `json:"name"`
	MinSize int64  `json:"min"`
	MaxSize int64  `json:"max"`
	jwt.RegisteredClaims
}

// Signer issues and checks upload policies with HS256.
type Signer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewSigner(secret []byte, expiry time.Duration) *Signer {
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &Signer{secret: secret, expiry: expiry, now: time.Now}
}

// Sign returns the token for name accepting sizes in [lo, hi].
func (s *Signer) Sign(name, subject string, lo, hi int64) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.expiry)
	p := Policy{
		Name:    name,
		MinSize: lo,
		MaxSize: hi,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, p).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses token and checks signature and expiry.
func (s *Signer) Verify(token string) (*Policy, error) {
	parsed, err := jwt.ParseWithClaims(token, &Policy{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	p, ok := parsed.Claims.(*Policy)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid policy")
	}
	return p, nil
}
