package queue

import "fmt"

// Gender is the declared gender of a queued user. Immutable for the session.
type Gender string

// Preference is who a queued user wants to be matched with. It may change
// while the user is waiting (see Store.ChangePreference).
type Preference string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"

	PrefMale   Preference = "male"
	PrefFemale Preference = "female"
	PrefAny    Preference = "any"
)

// Genders lists all valid genders in the order match searches scan them
// when the requester's preference is "any".
var Genders = []Gender{GenderMale, GenderFemale, GenderOther}

// ParseGender validates a wire-level gender string.
func ParseGender(s string) (Gender, error) {
	switch Gender(s) {
	case GenderMale, GenderFemale, GenderOther:
		return Gender(s), nil
	}
	return "", fmt.Errorf("queue: invalid gender %q", s)
}

// ParsePreference validates a wire-level preference string.
func ParsePreference(s string) (Preference, error) {
	switch Preference(s) {
	case PrefMale, PrefFemale, PrefAny:
		return Preference(s), nil
	}
	return "", fmt.Errorf("queue: invalid preference %q", s)
}

// Filtered reports whether the preference counts against the daily
// filtered-match quota. Only specific-gender preferences are charged.
func (p Preference) Filtered() bool {
	return p != PrefAny
}

// Key returns the Redis key of the waiting-list partition for a
// (gender, preference) pair.
func Key(g Gender, p Preference) string {
	return fmt.Sprintf("queue:%s:%s", g, p)
}
