package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

// NamespaceClaim is the JWT claim carrying the namespace the token grants.
const NamespaceClaim = "namespace"

type jwtAuthenticator struct {
	key []byte
}

// NewJWTAuthenticator creates an authenticator validating HS256-signed
// JSON Web Tokens against the given key. The namespace is read from the
// token's "namespace" claim.
func NewJWTAuthenticator(key []byte) (Authenticator, error) {
	if len(key) == 0 {
		return nil, errors.New("Secret key is required")
	}
	return &jwtAuthenticator{key: key}, nil
}

func (ja *jwtAuthenticator) Authenticate(token string) (*Namespace, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	parsed, err := jwt.Parse(token, ja.signingKey)
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorMalformed != 0 {
			// Not a JWT at all. A chained authenticator may still claim it.
			return nil, ErrUnrecognizedToken
		}
		return nil, ErrUnauthorized
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthorized
	}
	granted, ok := claims[NamespaceClaim].(string)
	if !ok || granted == "" {
		return nil, ErrUnauthorized
	}

	namespace := Namespace(granted)
	return &namespace, nil
}

// signingKey releases the key only for tokens declaring the HS256
// algorithm. The alg header never selects the scheme.
func (ja *jwtAuthenticator) signingKey(token *jwt.Token) (interface{}, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, ErrUnauthorized
	}
	return ja.key, nil
}
