// ABOUTME: Reusable slot validators for flow states
// ABOUTME: Errors carry user-facing guidance, never internal codes

package flow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DateLayout is the single accepted date format for user-entered dates.
const DateLayout = "02/01/2006"

// TimeLayout is the single accepted time-of-day format.
const TimeLayout = "15:04"

// DateValidator accepts a DD/MM/YYYY date that is today or later.
func DateValidator(slot string) *Validator {
	return &Validator{
		Slot: slot,
		Check: func(input string, now time.Time) (string, error) {
			d, err := time.Parse(DateLayout, input)
			if err != nil {
				return "", fmt.Errorf("That doesn't look like a date. Please use DD/MM/YYYY, for example %s.",
					now.AddDate(0, 0, 1).Format(DateLayout))
			}
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			if d.Before(today) {
				return "", fmt.Errorf("That date is in the past. Please pick today or a later date.")
			}
			return d.Format(DateLayout), nil
		},
	}
}

// TimeValidator accepts a HH:MM time of day.
func TimeValidator(slot string) *Validator {
	return &Validator{
		Slot: slot,
		Check: func(input string, _ time.Time) (string, error) {
			t, err := time.Parse(TimeLayout, input)
			if err != nil {
				return "", fmt.Errorf("That doesn't look like a time. Please use HH:MM, for example 19:00.")
			}
			return t.Format(TimeLayout), nil
		},
	}
}

// IntRangeValidator accepts an integer in [min, max] inclusive.
func IntRangeValidator(slot string, min, max int) *Validator {
	return &Validator{
		Slot: slot,
		Check: func(input string, _ time.Time) (string, error) {
			n, err := strconv.Atoi(input)
			if err != nil {
				return "", fmt.Errorf("Please reply with a number between %d and %d.", min, max)
			}
			if n < min || n > max {
				return "", fmt.Errorf("Please pick a number between %d and %d.", min, max)
			}
			return strconv.Itoa(n), nil
		},
	}
}

// PhoneValidator accepts a phone number: optional leading +, 7 to 15 digits,
// spaces and dashes ignored.
func PhoneValidator(slot string) *Validator {
	return &Validator{
		Slot: slot,
		Check: func(input string, _ time.Time) (string, error) {
			cleaned := strings.Map(func(r rune) rune {
				if r == ' ' || r == '-' || r == '(' || r == ')' {
					return -1
				}
				return r
			}, input)

			digits := cleaned
			if strings.HasPrefix(digits, "+") {
				digits = digits[1:]
			}
			if len(digits) < 7 || len(digits) > 15 {
				return "", fmt.Errorf("That doesn't look like a phone number. Please include the area code.")
			}
			for _, r := range digits {
				if !unicode.IsDigit(r) {
					return "", fmt.Errorf("That doesn't look like a phone number. Please use digits only.")
				}
			}
			return cleaned, nil
		},
	}
}

// TextValidator accepts any input of at least minLen characters. Used for
// free-form slots like names and problem descriptions.
func TextValidator(slot string, minLen int, hint string) *Validator {
	return &Validator{
		Slot: slot,
		Check: func(input string, _ time.Time) (string, error) {
			if len(strings.TrimSpace(input)) < minLen {
				return "", fmt.Errorf("%s", hint)
			}
			return strings.TrimSpace(input), nil
		},
	}
}
