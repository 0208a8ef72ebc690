// Package jwtauth verifies bearer tokens and maps them onto auth.User values.
// Keys come from a shared secret (HS*), a JWKS endpoint or a PEM file.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/artpar/agentresourcerest/internal/core/auth"
)

var errMissingKid = errors.New("token header missing 'kid' field required for JWKS")

// Validator verifies JWTs against an auth.Config.
type Validator struct {
	cfg    auth.Config
	alg    string
	jwks   *JWKSClient
	pemKey any
	parser *jwt.Parser
}

// NewValidator builds a validator. The PEM public key, when used, is read once
// here. httpClient is used for JWKS fetches and may be nil.
func NewValidator(cfg auth.Config, httpClient *http.Client, logger *slog.Logger) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, auth.ErrConfig("invalid JWT configuration", err)
	}

	v := &Validator{cfg: cfg, alg: strings.ToUpper(cfg.Algorithm)}

	switch {
	case cfg.IsHMAC():
	case cfg.JWKSURL != "":
		v.jwks = NewJWKSClient(cfg.JWKSURL, httpClient, logger)
	case cfg.PublicKeyPath != "":
		key, err := loadPublicKey(cfg.PublicKeyPath, v.alg)
		if err != nil {
			return nil, auth.ErrConfig("load public key", err)
		}
		v.pemKey = key
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.alg}),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

func loadPublicKey(path, alg string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("public key file: %w", err)
	}
	if strings.HasPrefix(alg, "ES") {
		return jwt.ParseECPublicKeyFromPEM(data)
	}
	return jwt.ParseRSAPublicKeyFromPEM(data)
}

// Validate verifies token and returns the user it identifies.
// The returned error is always an *auth.Error.
func (v *Validator) Validate(ctx context.Context, token string) (auth.User, error) {
	token = auth.StripBearer(token)
	if token == "" {
		return auth.User{}, auth.ErrMissingToken()
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, v.keyFunc(ctx))
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return auth.User{}, auth.ErrTokenExpired(err)
	case errors.Is(err, errMissingKid), errors.Is(err, ErrKeyNotFound):
		return auth.User{}, auth.ErrInvalidToken("JWKS key retrieval failed", err)
	default:
		return auth.User{}, auth.ErrInvalidToken("Invalid JWT token", err)
	}

	payload := map[string]any(claims)
	if err := auth.CheckRequiredClaims(payload, v.cfg.RequiredClaims); err != nil {
		return auth.User{}, err
	}
	return auth.UserFromClaims(payload)
}

func (v *Validator) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		switch {
		case v.cfg.IsHMAC():
			return []byte(v.cfg.SecretKey), nil
		case v.jwks != nil:
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errMissingKid
			}
			return v.jwks.Key(ctx, kid)
		default:
			return v.pemKey, nil
		}
	}
}
