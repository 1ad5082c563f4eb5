package domain

import "time"

// Gender of a user, used to enforce ride gender preferences.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// User represents a driver or passenger. The engine reads users for
// display names, payer tokens and gender checks; it never mutates them
// beyond registration.
type User struct {
	ID         string
	Name       string
	Phone      string
	Gender     Gender
	PayerToken string
	CreatedAt  time.Time
}
