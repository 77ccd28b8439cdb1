package core

// Identity is an authenticated user reference.
type Identity struct {
	UserID      string
	DisplayName string
}

// Verifier turns an opaque bearer token into an Identity.
// Implementations must be safe for concurrent use and free of side effects.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// VerifierFunc adapts a plain function to Verifier.
type VerifierFunc func(token string) (Identity, error)

// Verify calls f(token).
func (f VerifierFunc) Verify(token string) (Identity, error) {
	return f(token)
}
