package auth

// LockoutPolicy escalates repeated failed password attempts into a
// forced re-verification. The counter itself lives on the account and
// is maintained atomically by the repository; the policy only decides
// when the threshold is crossed.
type LockoutPolicy struct {
	Threshold int
}

// DefaultLockoutThreshold is the number of consecutive failures that
// suspends an account.
const DefaultLockoutThreshold = 5

// NewLockoutPolicy returns a policy with the given threshold, falling
// back to the default when it is not positive.
func NewLockoutPolicy(threshold int) LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	return LockoutPolicy{Threshold: threshold}
}

// ShouldSuspend reports whether an account with the given consecutive
// failure count must transition to SUSPENDED. Already-suspended
// accounts are never re-suspended.
func (p LockoutPolicy) ShouldSuspend(failedLogins int, current Status) bool {
	return failedLogins >= p.Threshold && current != StatusSuspended
}
