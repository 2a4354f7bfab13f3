package auth

import (
	"time"

	"ideaboard/config"
	"ideaboard/internal/domain/entity"
	domainerrors "ideaboard/internal/domain/errors"
	"ideaboard/internal/domain/service"
	"ideaboard/internal/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/fx"
)

// accessClaims is the JWT body: registered claims plus the role.
type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// jwtIssuer is a concrete implementation of the TokenIssuer interface using HS256.
type jwtIssuer struct {
	secret []byte
	issuer string
	clock  service.Clock
}

// IssuerParams holds dependencies for the token issuer
type IssuerParams struct {
	fx.In

	Config *config.Config
	Clock  service.Clock `optional:"true"`
}

// NewJWTIssuer is the constructor for jwtIssuer.
func NewJWTIssuer(params IssuerParams) (service.TokenIssuer, error) {
	if params.Config.SecretKey.Access == "" {
		return nil, errors.New("jwt secret must be provided")
	}

	clock := params.Clock
	if clock == nil {
		clock = service.SystemClock()
	}

	issuer := ""
	if params.Config.Auth != nil {
		issuer = params.Config.Auth.Issuer
	}

	return &jwtIssuer{
		secret: []byte(params.Config.SecretKey.Access),
		issuer: issuer,
		clock:  clock,
	}, nil
}

// Issue signs a new access token for the subject.
func (s *jwtIssuer) Issue(subject uuid.UUID, role entity.Role, ttl time.Duration) (string, *entity.AccessTokenClaims, error) {
	now := s.clock()
	claims := accessClaims{
		Role: role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, errors.Wrap(err, "sign access token")
	}

	return signed, &entity.AccessTokenClaims{
		Subject:   subject,
		Role:      role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenID:   claims.ID,
	}, nil
}

// Verify parses the token, accepting HS256 only.
func (s *jwtIssuer) Verify(token string) (*entity.AccessTokenClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock),
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}

	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}

		return s.secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Wrap(domainerrors.ErrTokenExpired, err.Error())
		}

		return nil, errors.Wrap(domainerrors.ErrInvalidToken, err.Error())
	}
	if !parsed.Valid {
		return nil, errors.WithStack(domainerrors.ErrInvalidToken)
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "subject is not a uuid")
	}

	role, ok := entity.ParseRole(claims.Role)
	if !ok {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "unknown role")
	}

	if claims.ID == "" || claims.IssuedAt == nil {
		return nil, errors.Wrap(domainerrors.ErrInvalidToken, "missing jti or iat")
	}

	return &entity.AccessTokenClaims{
		Subject:   subject,
		Role:      role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenID:   claims.ID,
	}, nil
}
