package auth

import "errors"

// chainAuthenticator tries each link in order until one claims the token.
type chainAuthenticator []Authenticator

// NewChainAuthenticator creates an authenticator delegating to the given
// authenticators, in order. A link that does not recognize the token
// passes it to the next one; any other outcome is returned as-is.
func NewChainAuthenticator(auths []Authenticator) (Authenticator, error) {
	if len(auths) == 0 {
		return nil, errors.New("authenticator chain is empty")
	}
	for _, a := range auths {
		if a == nil {
			return nil, errors.New("authenticator chain contains a nil authenticator")
		}
	}

	chain := make(chainAuthenticator, len(auths))
	copy(chain, auths)
	return chain, nil
}

func (c chainAuthenticator) Authenticate(token string) (*Namespace, error) {
	for _, a := range c {
		namespace, err := a.Authenticate(token)
		if err == ErrUnrecognizedToken {
			continue
		}
		return namespace, err
	}

	// No link claimed the token.
	return nil, ErrUnauthorized
}
