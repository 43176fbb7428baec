package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Token inspection errors.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrMissingSubject  = errors.New("missing subject claim")
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// AdminTokenClaims are the claims an inspected admin token carries.
type AdminTokenClaims struct {
	Subject         string
	Username        string
	AuthorizedParty string
	RealmRoles      []string
	IssuedAt        time.Time
	ExpiresAt       time.Time
}

// TokenInspector verifies a bearer token offline against the realm's
// published JWKS. It is a diagnostic aid for pre-supplied tokens; the
// request path never consults it.
type TokenInspector interface {
	// Inspect validates the token signature and standard claims.
	Inspect(ctx context.Context, token string) (*AdminTokenClaims, error)

	// Close stops the background JWKS refresh.
	Close() error
}

// TokenInspectorConfig contains configuration for NewTokenInspector.
type TokenInspectorConfig struct {
	// BaseURL is the origin of the Keycloak server.
	BaseURL string

	// Realm is the realm that issued the tokens.
	Realm string

	// Leeway is the clock-skew tolerance (default 30s).
	Leeway time.Duration

	// RefreshInterval is how often the JWKS is re-fetched (default 1h).
	RefreshInterval time.Duration

	// Logger is an optional structured logger.
	Logger *slog.Logger
}

const (
	defaultInspectorLeeway = 30 * time.Second
	defaultJWKSRefresh     = 1 * time.Hour
)

type tokenInspector struct {
	jwks      keyfunc.Keyfunc
	leeway    time.Duration
	issuerURL string
	cancel    context.CancelFunc
	logger    *slog.Logger
}

// NewTokenInspector creates a TokenInspector with cached JWKS.
func NewTokenInspector(cfg TokenInspectorConfig) (TokenInspector, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: BaseURL is required", ErrJWKSFetchFailed)
	}
	if cfg.Realm == "" {
		return nil, fmt.Errorf("%w: Realm is required", ErrJWKSFetchFailed)
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = defaultInspectorLeeway
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = defaultJWKSRefresh
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	issuerURL := fmt.Sprintf("%s/realms/%s", cfg.BaseURL, cfg.Realm)
	jwksURL := issuerURL + "/protocol/openid-connect/certs"

	ctx, cancel := context.WithCancel(context.Background())

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Ctx:             ctx,
		RefreshInterval: cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, refreshErr error) {
			logger.Error("failed to refresh JWKS", slog.Any("error", refreshErr))
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	jwks, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrJWKSFetchFailed, err)
	}

	return &tokenInspector{
		jwks:      jwks,
		leeway:    cfg.Leeway,
		issuerURL: issuerURL,
		cancel:    cancel,
		logger:    logger,
	}, nil
}

// Inspect validates the token signature and standard claims.
func (i *tokenInspector) Inspect(_ context.Context, tokenString string) (*AdminTokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, i.jwks.Keyfunc,
		jwt.WithLeeway(i.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(i.issuerURL),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, fmt.Errorf("%w: %w", ErrInvalidIssuer, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return extractAdminClaims(claims)
}

func extractAdminClaims(claims jwt.MapClaims) (*AdminTokenClaims, error) {
	ac := &AdminTokenClaims{}

	ac.Subject, _ = claims["sub"].(string)
	if ac.Subject == "" {
		return nil, ErrMissingSubject
	}
	ac.Username, _ = claims["preferred_username"].(string)
	ac.AuthorizedParty, _ = claims["azp"].(string)

	if realmAccess, realmOK := claims["realm_access"].(map[string]any); realmOK {
		if roles, rolesOK := realmAccess["roles"].([]any); rolesOK {
			ac.RealmRoles = make([]string, 0, len(roles))
			for _, role := range roles {
				if r, roleOK := role.(string); roleOK {
					ac.RealmRoles = append(ac.RealmRoles, r)
				}
			}
		}
	}

	if iat, iatOK := claims["iat"].(float64); iatOK {
		ac.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, expOK := claims["exp"].(float64); expOK {
		ac.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return ac, nil
}

// Close stops the background JWKS refresh.
func (i *tokenInspector) Close() error {
	if i.cancel != nil {
		i.cancel()
	}
	return nil
}
