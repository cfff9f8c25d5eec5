package rpc

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"yetifarm/config"
	"yetifarm/crypto"
	"yetifarm/observability/logging"
)

// accountAuth verifies the HMAC signed JWT carried by account-mutating calls.
// The subject claim names the only account the request may act for.
type accountAuth struct {
	secret []byte
	parser *jwt.Parser
}

func newAccountAuth(cfg config.AccountAuth, secret string, now func() time.Time) *accountAuth {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Duration(cfg.ClockSkewSeconds) * time.Second),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}
	return &accountAuth{
		secret: []byte(strings.TrimSpace(secret)),
		parser: jwt.NewParser(opts...),
	}
}

func (a *accountAuth) parseSubject(tokenString string) (crypto.Address, error) {
	if a == nil || len(a.secret) == 0 {
		return crypto.Address{}, errors.New("account authentication not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return crypto.Address{}, err
	}
	if !token.Valid {
		return crypto.Address{}, errors.New("token invalid")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return crypto.Address{}, errors.New("token subject required")
	}
	return crypto.DecodeAddress(subject)
}

// requireAccount rejects the call unless its bearer JWT was issued for
// account.
func (s *Server) requireAccount(r *http.Request, field string, account crypto.Address) *RPCError {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	subject, err := s.accounts.parseSubject(tokenString)
	if err != nil {
		s.logger.Warn("account token rejected", "error", err.Error())
		return &RPCError{Code: codeUnauthorized, Message: "invalid account token"}
	}
	if !subject.Equal(account) {
		s.logger.Warn("account token subject mismatch",
			logging.MaskAccount("subject", subject.String()),
			logging.MaskAccount(field, account.String()))
		return &RPCError{Code: codeUnauthorized, Message: "token subject does not match " + field}
	}
	return nil
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	token := extractBearer(header)
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
