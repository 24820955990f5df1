package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens minted by IssueToken when the
// caller does not pick one.
const DefaultTokenTTL = 24 * time.Hour

const clockSkew = time.Minute

// Authenticator resolves the calling address from an HS256 bearer token whose
// subject is the hex address of the caller.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator constructs an authenticator for the shared secret. An empty
// issuer disables the issuer check.
func NewAuthenticator(secret []byte, issuer string) *Authenticator {
	return &Authenticator{
		secret: append([]byte(nil), secret...),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}
}

// Authenticate extracts and validates the bearer token on r.
func (a *Authenticator) Authenticate(r *http.Request) ([20]byte, *RPCError) {
	var caller [20]byte
	if a == nil || len(a.secret) == 0 {
		return caller, &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return caller, &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return caller, &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return caller, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	subject, err := a.parse(raw)
	if err != nil {
		return caller, &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials", Data: err.Error()}
	}
	return subject, nil
}

func (a *Authenticator) parse(raw string) ([20]byte, error) {
	var caller [20]byte
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return caller, err
	}
	if !token.Valid {
		return caller, errors.New("token invalid")
	}
	subject := strings.TrimSpace(claims.Subject)
	if !common.IsHexAddress(subject) {
		return caller, fmt.Errorf("subject %q is not an address", subject)
	}
	return common.HexToAddress(subject), nil
}

// IssueToken mints an HS256 token identifying subject. It backs the CLI token
// command and tests.
func IssueToken(secret []byte, issuer string, subject [20]byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("rpc: jwt secret required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.RegisteredClaims{
		Subject:   common.Address(subject).Hex(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-clockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		claims.Issuer = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
