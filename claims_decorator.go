package auth

// ClaimsDecorator adjusts access token claims before they are signed. Only
// the permission list may change, identity and lifetime claims are checked
// after every call and the token is refused when they moved.
type ClaimsDecorator interface {
	Decorate(identity Identity, claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator
type ClaimsDecoratorFunc func(identity Identity, claims *JWTClaims) error

// Decorate satisfies the ClaimsDecorator interface
func (f ClaimsDecoratorFunc) Decorate(identity Identity, claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(identity, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(Identity, *JWTClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}

// decorate runs d and rejects any change outside the permission list
func decorate(d ClaimsDecorator, identity Identity, claims *JWTClaims) error {
	snap := captureClaims(claims)
	if err := normalizeClaimsDecorator(d).Decorate(identity, claims); err != nil {
		return err
	}
	return snap.validate(claims)
}
