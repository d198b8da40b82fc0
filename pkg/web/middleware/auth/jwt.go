package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/fluxorio/wordbridge/pkg/web"
	"github.com/golang-jwt/jwt/v5"
	"github.com/valyala/fasthttp"
)

// JWTConfig configures JWT authentication
type JWTConfig struct {
	// SecretKey is the HMAC key used to verify tokens.
	SecretKey string

	// ValidMethods lists accepted signing algorithms. Default: HS256.
	ValidMethods []string

	Issuer string
	Leeway time.Duration

	// ClaimsKey is the RequestContext key the claims are stored under.
	ClaimsKey string

	// SkipPaths are served without a token. An entry ending in "/" matches
	// the whole subtree.
	SkipPaths []string
}

// DefaultJWTConfig returns a default JWT configuration
func DefaultJWTConfig(secretKey string) JWTConfig {
	return JWTConfig{
		SecretKey:    secretKey,
		ClaimsKey:    "claims",
		ValidMethods: []string{"HS256"},
	}
}

// JWT middleware validates a bearer token from the Authorization header.
func JWT(config JWTConfig) web.Middleware {
	if config.SecretKey == "" {
		panic("JWT: SecretKey must be provided")
	}
	validMethods := config.ValidMethods
	if len(validMethods) == 0 {
		validMethods = []string{"HS256"}
	}
	claimsKey := config.ClaimsKey
	if claimsKey == "" {
		claimsKey = "claims"
	}

	options := []jwt.ParserOption{jwt.WithValidMethods(validMethods)}
	if config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(config.Leeway))
	}
	if config.Issuer != "" {
		options = append(options, jwt.WithIssuer(config.Issuer))
	}
	parser := jwt.NewParser(options...)

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(config.SecretKey), nil
	}

	return func(next web.Handler) web.Handler {
		return func(c *web.RequestContext) error {
			if skipped(c.Path(), config.SkipPaths) {
				return next(c)
			}

			header := c.Header("Authorization")
			scheme, tokenString, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				return unauthorized(c)
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
			if err != nil || !token.Valid {
				return unauthorized(c)
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func skipped(path string, skipPaths []string) bool {
	for _, p := range skipPaths {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

func unauthorized(c *web.RequestContext) error {
	c.RequestCtx.Response.Header.Set("WWW-Authenticate", `Bearer realm="wordbridge", error="invalid_token"`)
	return web.NewHTTPError(fasthttp.StatusUnauthorized, "invalid or missing token")
}

// GetClaims extracts JWT claims from request context
func GetClaims(c *web.RequestContext, key string) (jwt.MapClaims, error) {
	claims, ok := c.Get(key).(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("claims not found in context")
	}
	return claims, nil
}

// JWTTokenGenerator generates JWT tokens
type JWTTokenGenerator struct {
	secret []byte
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(secret []byte) *JWTTokenGenerator {
	return &JWTTokenGenerator{secret: secret}
}

// Generate signs claims with HS256, adding iat and exp.
func (g *JWTTokenGenerator) Generate(claims map[string]interface{}, expiresIn time.Duration) (string, error) {
	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	now := time.Now()
	mc["iat"] = now.Unix()
	mc["exp"] = now.Add(expiresIn).Unix()

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
