package storage

import "fmt"

// MaxRetriesExceededError is returned by Transform when every attempt lost
// the optimistic-concurrency race.
type MaxRetriesExceededError struct {
	Attempts int
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("transform: max retries exceeded after %d attempts", e.Attempts)
}

// InvalidUserIDError is returned whenever a share-related call receives a
// userId that fails the hygiene regex in sharing.go. The call never
// touches persisted state when this is returned.
type InvalidUserIDError struct {
	UserID string
}

func (e *InvalidUserIDError) Error() string {
	return fmt.Sprintf("invalid user id %q", e.UserID)
}
