// Package testutil provides testing utilities for the deeppomo project.
package testutil

// Safe test secrets that won't trigger secret scanning.
// These are intentionally simple and obviously fake.
const (
	// FakeSecretKey signs access tokens in tests.
	FakeSecretKey = "test-secret-key-for-signing-tokens"

	// FakePassword satisfies the minimum password length.
	FakePassword = "test-password"

	// FakeJWT is a syntactically broken token for negative tests.
	FakeJWT = "test.jwt.token"

	// FakeBearerToken is a safe test bearer token.
	FakeBearerToken = "test-bearer-token"
)
