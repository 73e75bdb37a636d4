// Package auth exchanges a service account's signed assertion for a platform access token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"mdh-device-export/internal/security"
)

const (
	tracerName = "mdh-device-export/internal/auth"

	// AssertionType is the client_assertion_type of a JWT bearer client assertion.
	AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	// Scope is the only scope requested from the token endpoint.
	Scope = "api"
)

var (
	// ErrSigningKey is returned when the private key cannot be read or used to sign.
	ErrSigningKey = errors.New("auth: signing key unavailable")
	// ErrTokenExchange is returned when the token endpoint rejects the assertion or cannot be reached.
	ErrTokenExchange = errors.New("auth: token exchange failed")
)

// Provider mints bearer tokens through the client-credentials grant with a signed JWT assertion.
// Tokens are not cached; every Token call performs a fresh exchange.
type Provider struct {
	serviceAccount string
	tokenURL       string
	privateKey     string
	assertionTTL   time.Duration
	httpClient     *http.Client
}

// NewProvider returns a Provider for serviceAccount. privateKey is a PEM file path or inline PEM and is
// read on each Token call. httpClient may be nil to use http.DefaultClient.
func NewProvider(serviceAccount, tokenURL, privateKey string, assertionTTL time.Duration, httpClient *http.Client) *Provider {
	return &Provider{
		serviceAccount: serviceAccount,
		tokenURL:       tokenURL,
		privateKey:     privateKey,
		assertionTTL:   assertionTTL,
		httpClient:     httpClient,
	}
}

// Token signs a new assertion and exchanges it for an access token.
// Any non-2xx response from the token endpoint is returned as ErrTokenExchange with status and body.
func (p *Provider) Token(ctx context.Context) (token string, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "auth.Token")
	span.SetAttributes(attribute.String("mdh.service_account", p.serviceAccount))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	key, err := security.ParsePrivateKey(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningKey, err)
	}
	assertion, _, _, err := security.NewAssertionSigner(key, p.serviceAccount, p.tokenURL, p.assertionTTL).Sign()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningKey, err)
	}

	cc := clientcredentials.Config{
		TokenURL: p.tokenURL,
		Scopes:   []string{Scope},
		EndpointParams: url.Values{
			"client_assertion_type": {AssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return "", fmt.Errorf("%w: status=%d body=%s", ErrTokenExchange, re.Response.StatusCode, string(re.Body))
		}
		return "", fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	return tok.AccessToken, nil
}
