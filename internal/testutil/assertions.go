package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parsascontentcorner/fansite/internal/models"
)

// AssertAccountRoles checks the role flags of an account in one call
func AssertAccountRoles(t *testing.T, account *models.Account, subscriber, owner, trusted, banned bool) {
	t.Helper()

	assert.Equal(t, subscriber, account.IsSubscriber, "IsSubscriber should match")
	assert.Equal(t, owner, account.IsOwner, "IsOwner should match")
	assert.Equal(t, trusted, account.IsTrusted, "IsTrusted should match")
	assert.Equal(t, banned, account.IsBanned, "IsBanned should match")
}

// AssertStateEqual performs a deep comparison of two OAuthState objects.
func AssertStateEqual(t *testing.T, expected, actual *models.OAuthState) {
	t.Helper()

	assert.Equal(t, expected.State, actual.State, "State should match")
	assert.Equal(t, expected.Purpose, actual.Purpose, "Purpose should match")

	AssertTimeAlmostEqual(t, expected.ExpiresAt, actual.ExpiresAt, 2*time.Second)
}

// AssertTimeAlmostEqual checks if two times are within a specified delta.
// Useful for timestamp comparisons where exact equality isn't expected.
func AssertTimeAlmostEqual(t *testing.T, expected, actual time.Time, delta time.Duration) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}

	assert.True(t,
		diff <= delta,
		"Times should be within %v of each other. Expected: %v, Actual: %v, Diff: %v",
		delta, expected, actual, diff,
	)
}
