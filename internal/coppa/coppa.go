// Package coppa implements the age checks required by the Children's Online
// Privacy Protection Act. The deletion engine uses these to decide whether a
// request needs verifiable parental consent.
package coppa

import "time"

// MinorAgeLimit is the COPPA threshold: users younger than 13 require
// parental consent for account actions.
const MinorAgeLimit = 13

// CalculateAge returns the age in whole years at the reference time.
func CalculateAge(dateOfBirth, at time.Time) int {
	age := at.Year() - dateOfBirth.Year()
	if at.Month() < dateOfBirth.Month() ||
		(at.Month() == dateOfBirth.Month() && at.Day() < dateOfBirth.Day()) {
		age--
	}
	return age
}

// IsMinor reports whether the user is under 13 at the reference time.
func IsMinor(dateOfBirth, at time.Time) bool {
	return CalculateAge(dateOfBirth, at) < MinorAgeLimit
}

// IsValidDateOfBirth rejects dates in the future, ages over 120, and ages
// under 3 (minimum age for using the platform).
func IsValidDateOfBirth(dateOfBirth, at time.Time) bool {
	if dateOfBirth.After(at) {
		return false
	}
	age := CalculateAge(dateOfBirth, at)
	return age >= 3 && age <= 120
}
