package middleware

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-scheduler/internal/config"
	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
	"github.com/jwalitptl/clinic-scheduler/pkg/httputil"
)

// ContextScope is the gin context key holding the caller's model.Scope.
const ContextScope = "scope"

// Claims carries the tenant and role of the caller. The subject is the
// user id.
type Claims struct {
	BusinessID uuid.UUID  `json:"business_id"`
	Role       model.Role `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAuthenticator(cfg config.JWTConfig) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// Authenticate verifies the bearer token and stores the caller's scope in
// the context.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, errors.Unauthorized(stderrors.New("missing authorization header")))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httputil.RespondWithError(c, errors.Unauthorized(stderrors.New("invalid authorization format")))
			return
		}

		claims, err := a.Parse(token)
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil || claims.BusinessID == uuid.Nil {
			httputil.RespondWithError(c, errors.Unauthorized(stderrors.New("token is missing subject or business")))
			return
		}

		c.Set(ContextScope, model.Scope{
			BusinessID: claims.BusinessID,
			UserID:     userID,
			Role:       claims.Role,
			Now:        a.now(),
		})
		c.Next()
	}
}

// Parse validates an HS256 token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Sign issues a token for the given user. Used by the CLI and tests.
func (a *Authenticator) Sign(userID, businessID uuid.UUID, role model.Role, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		BusinessID: businessID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ScopeFrom returns the scope stored by Authenticate.
func ScopeFrom(c *gin.Context) (model.Scope, bool) {
	v, ok := c.Get(ContextScope)
	if !ok {
		return model.Scope{}, false
	}
	scope, ok := v.(model.Scope)
	return scope, ok
}
