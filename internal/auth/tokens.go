package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authcore.org/internal/ids"
)

type tokenKind int

const (
	accessToken tokenKind = iota
	renewToken
)

func (k tokenKind) String() string {
	if k == renewToken {
		return "renew"
	}
	return "access"
}

// Claims is the payload of both token kinds. UserID is the only private
// claim; ID (jti) keeps every minted token distinct.
type Claims struct {
	UserID int64 `json:"id"`
	jwt.RegisteredClaims
}

// TokenPair is handed to a client after login, renewal or password change.
type TokenPair struct {
	AccessToken     string    `json:"token"`
	AccessExpiresAt time.Time `json:"expires_at"`
	RenewToken      string    `json:"renew_token"`
	RenewExpiresAt  time.Time `json:"renew_expires_at"`
}

// signingKey binds a token to the user's current secret. Rotating the
// secret invalidates every token signed before.
func (s *Service) signingKey(u User, kind tokenKind) []byte {
	shared := s.accessSecret
	if kind == renewToken {
		shared = s.renewSecret
	}
	return []byte(u.SecretKey + shared)
}

func (s *Service) sign(u User, kind tokenKind, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID: u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ids.NewAt(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(s.signingKey(u, kind))
}

// peekClaims decodes a token without checking its signature. It is only
// used to learn whose secret the token must be verified against.
func peekClaims(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token carries no user id")
	}
	return claims, nil
}

// verify checks the signature and, unless skipTimes is set, the time
// based claims of raw against u's key.
func (s *Service) verify(raw string, u User, kind tokenKind, skipTimes bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.clockTolerance),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if skipTimes {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.signingKey(u, kind), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.UserID != u.ID {
		return nil, errors.New("token subject mismatch")
	}
	return claims, nil
}

// tokenError maps verification failures onto error kinds: an expired
// token is unauthorized, a token used before its time is a bad request,
// anything else (malformed, bad signature) is forbidden.
func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &Error{Kind: KindUnauthorized, Message: "token expired", Err: err}
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return &Error{Kind: KindBadRequest, Message: "token not active", Err: err}
	default:
		return &Error{Kind: KindForbidden, Message: "invalid token", Err: err}
	}
}
