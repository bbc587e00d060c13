package domain

import (
	"github.com/google/uuid"
)

type EmailFrequency string

const (
	EmailInstant EmailFrequency = "instant"
	EmailHourly  EmailFrequency = "hourly"
	EmailDaily   EmailFrequency = "daily"
	EmailWeekly  EmailFrequency = "weekly"
)

func (f EmailFrequency) IsValid() bool {
	switch f {
	case EmailInstant, EmailHourly, EmailDaily, EmailWeekly:
		return true
	}
	return false
}

// Recipient is the slice of a user the delivery channels need.
type Recipient struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	Email          string         `json:"email" db:"email"`
	Username       string         `json:"username" db:"username"`
	Locale         string         `json:"locale" db:"locale"`
	EmailFrequency EmailFrequency `json:"email_frequency" db:"email_frequency"`
}

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)
