package contact

import "time"

// nextOccurrence projects a birthday's month/day onto the current year, or
// the next year if it has already passed. Feb 29 birthdays land on Mar 1 in
// non-leap years so they are never silently skipped.
func nextOccurrence(birthday, today time.Time) time.Time {
	occ := time.Date(today.Year(), birthday.Month(), birthday.Day(), 0, 0, 0, 0, today.Location())

	// time.Date normalizes Feb 29 to Mar 1 in non-leap years, which is
	// exactly the behavior we want
	if occ.Before(today) {
		occ = time.Date(today.Year()+1, birthday.Month(), birthday.Day(), 0, 0, 0, 0, today.Location())
	}

	return occ
}

// birthdayInWindow reports whether the birthday's next occurrence falls
// within [today, today+withinDays], both bounds inclusive
func birthdayInWindow(birthday, today time.Time, withinDays int) bool {
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	end := today.AddDate(0, 0, withinDays)

	occ := nextOccurrence(birthday, today)
	return !occ.Before(today) && !occ.After(end)
}
