package domain

import (
	"errors"
	"fmt"
)

type UserStatus string

const (
	UserUnregistered                 UserStatus = "UNREGISTERED"
	UserInitialized                  UserStatus = "INITIALIZED"
	UserRegistered                   UserStatus = "REGISTERED"
	UserIdentityVerified             UserStatus = "IDENTITY_VERIFIED"
	UserIdentityVerificationRequired UserStatus = "IDENTITY_VERIFICATION_REQUIRED"
	UserLocked                       UserStatus = "LOCKED"
	UserDisabled                     UserStatus = "DISABLED"
	UserSuspended                    UserStatus = "SUSPENDED"
	UserDeactivated                  UserStatus = "DEACTIVATED"
	UserDeletedPending               UserStatus = "DELETED_PENDING"
	UserDeleted                      UserStatus = "DELETED"
)

var ErrInvalidStatusTransition = errors.New("invalid user status transition")

// userTransitions is the complete lifecycle. A status missing from a row
// cannot be reached from that row's status. Deletion always passes through
// DELETED_PENDING.
var userTransitions = map[UserStatus][]UserStatus{
	UserUnregistered: {UserInitialized, UserRegistered},
	UserInitialized:  {UserRegistered, UserDeletedPending},
	UserRegistered: {
		UserIdentityVerified, UserIdentityVerificationRequired, UserLocked,
		UserDisabled, UserSuspended, UserDeactivated, UserDeletedPending,
	},
	UserIdentityVerificationRequired: {
		UserIdentityVerified, UserLocked, UserDisabled, UserSuspended, UserDeletedPending,
	},
	UserIdentityVerified: {
		UserIdentityVerificationRequired, UserLocked, UserDisabled,
		UserSuspended, UserDeactivated, UserDeletedPending,
	},
	UserLocked:         {UserRegistered, UserIdentityVerified, UserDisabled, UserDeletedPending},
	UserDisabled:       {UserRegistered, UserDeletedPending},
	UserSuspended:      {UserRegistered, UserIdentityVerified, UserDeletedPending},
	UserDeactivated:    {UserRegistered, UserDeletedPending},
	UserDeletedPending: {UserDeleted, UserRegistered},
	UserDeleted:        {},
}

// CanTransit reports whether from -> to is in the lifecycle table.
func CanTransit(from, to UserStatus) bool {
	for _, s := range userTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitTo moves the user to status. Staying in the current status is a
// no-op.
func (u *User) TransitTo(status UserStatus) error {
	from := u.Status
	if from == "" {
		from = UserUnregistered
	}
	if from == status {
		return nil
	}
	if !CanTransit(from, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, status)
	}
	u.Status = status
	return nil
}

// CanAuthenticate reports whether a user in this status may sign in.
func (s UserStatus) CanAuthenticate() bool {
	switch s {
	case UserInitialized, UserRegistered, UserIdentityVerified, UserIdentityVerificationRequired:
		return true
	default:
		return false
	}
}
