package domain

import "regexp"

var phoneNumberPattern = regexp.MustCompile(`^\d{10}$`)

type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

func (u User) Validate() error {
	if u.Name == "" || u.Email == "" || u.PhoneNumber == "" {
		return NewError(ErrInvalidInput, "name, email and phoneNumber are required")
	}
	if !phoneNumberPattern.MatchString(u.PhoneNumber) {
		return NewError(ErrInvalidInput, "Please enter a valid 10-digit phone number")
	}
	return nil
}
