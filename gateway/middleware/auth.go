package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures bearer JWT verification.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "stakingd.caller"

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// CallerFromContext returns the caller installed by the authenticator.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	return caller, ok
}

// Authenticator resolves the calling account from an HMAC-signed bearer
// token. The subject claim must be the caller's hex address.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator builds an authenticator from cfg.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		parser: jwt.NewParser(opts...),
	}
}

// Middleware rejects requests without a valid token and installs the caller
// address on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		caller, err := a.Authenticate(tokenString)
		if err != nil {
			a.logger.Warn("auth: token rejected", "path", r.URL.Path, "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// Authenticate verifies tokenString and returns the caller it names.
func (a *Authenticator) Authenticate(tokenString string) (common.Address, error) {
	if len(a.secret) == 0 {
		return common.Address{}, errors.New("auth secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return common.Address{}, err
	}
	if !token.Valid {
		return common.Address{}, errors.New("token invalid")
	}
	subject := strings.TrimSpace(claims.Subject)
	if !common.IsHexAddress(subject) {
		return common.Address{}, errors.New("subject is not an account address")
	}
	caller := common.HexToAddress(subject)
	if caller == (common.Address{}) {
		return common.Address{}, errors.New("subject is the zero address")
	}
	return caller, nil
}

// IssueToken signs a token naming caller. Tooling and tests use it to mint
// credentials with the shared secret.
func IssueToken(secret string, caller common.Address, issuer, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
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
