// Package domain contains entities and their invariants, no storage or transport
package domain

import (
	"fmt"
)

const MaxUserIDLen = 128

type UserID string

// ParseUserID checks an identity handed over by the auth collaborator.
func ParseUserID(raw string) (UserID, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: user id empty", ErrInvalidArgument)
	}
	if len(raw) > MaxUserIDLen {
		return "", fmt.Errorf("%w: user id too long", ErrInvalidArgument)
	}
	return UserID(raw), nil
}
