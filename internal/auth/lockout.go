package auth

import "time"

const (
	// LockThreshold is the number of consecutive failed logins that locks an
	// account.
	LockThreshold = 5
	// LockDuration is how long an account stays locked once the threshold is
	// reached.
	LockDuration = 2 * time.Hour
)

// LockoutState is the per-user brute-force counter. It is pure data: the
// methods return the next state and never touch storage.
type LockoutState struct {
	FailedLoginCount int
	LockUntil        *time.Time
}

// Locked reports whether the account is locked at the given time.
func (s LockoutState) Locked(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}

// OnFailure returns the state after one more failed login. Reaching the
// threshold sets the lock to now + LockDuration. A failure while a lock is
// already active still increments the counter but does not refresh the lock.
func (s LockoutState) OnFailure(now time.Time) LockoutState {
	next := LockoutState{
		FailedLoginCount: s.FailedLoginCount + 1,
		LockUntil:        s.LockUntil,
	}
	if next.FailedLoginCount >= LockThreshold && !s.Locked(now) {
		until := now.Add(LockDuration)
		next.LockUntil = &until
	}
	return next
}

// OnSuccess returns the state after a successful login: counter reset, lock
// cleared.
func (s LockoutState) OnSuccess() LockoutState {
	return LockoutState{}
}
