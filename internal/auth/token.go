package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the pawlog bearer token claims: the subject is the actor, Pets
// the owners it may read and write. A "*" entry grants every pet.
type Claims struct {
	jwt.RegisteredClaims
	Pets []string `json:"pets"`
}

type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// Issue signs an HS256 token for actor valid for ttl.
func (i *Issuer) Issue(actor string, pets []string, ttl time.Duration) (string, error) {
	if actor == "" {
		return "", fmt.Errorf("issue token: actor is required")
	}
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Pets: pets,
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns the AuthContext it grants.
func (i *Issuer) Parse(tokenString string) (AuthContext, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return AuthContext{}, ErrInvalidToken
	}

	ac := AuthContext{Actor: claims.Subject, TokenID: claims.ID}
	for _, p := range claims.Pets {
		if p == "*" {
			ac.AllPets = true
			continue
		}
		ac.Pets = append(ac.Pets, p)
	}
	return ac, nil
}
