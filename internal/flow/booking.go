// ABOUTME: Restaurant booking vertical: menu, date, time, party size, confirmation
// ABOUTME: Emits a Booking artifact when the reservation is confirmed

package flow

import "fmt"

// Booking state tags.
const (
	BookingStateWelcome   = "welcome"
	BookingStateDate      = "awaiting_date"
	BookingStateTime      = "awaiting_time"
	BookingStatePartySize = "awaiting_party_size"
	BookingStateConfirmed = "confirmed"
)

// RestaurantBooking builds the restaurant reservation flow. maxPartySize is
// the largest party the restaurant accepts; larger requests are re-prompted.
func RestaurantBooking(maxPartySize int) *Definition {
	welcomePrompt := Message{
		Text: "Welcome to the restaurant! How can I help?\n" +
			"1. Opening hours\n" +
			"2. Book a table\n" +
			"3. Talk to the team",
		QuickReplies: []string{"1", "2", "3"},
	}

	return &Definition{
		Name:     "booking",
		Triggers: []string{"book", "booking", "reservation", "reserve", "table", "restaurant"},
		Initial:  BookingStateWelcome,
		Synonyms: map[string]string{
			"book a table":    "2",
			"reservation":     "2",
			"reserve":         "2",
			"opening hours":   "1",
			"hours":           "1",
			"talk to a human": "3",
		},
		States: map[string]*State{
			BookingStateWelcome: {
				Name:   BookingStateWelcome,
				Prompt: welcomePrompt,
				Choices: map[string]Transition{
					"1": {
						Next: BookingStateWelcome,
						Messages: []Message{
							{Text: "We're open Tuesday to Sunday, 12:00–23:00."},
							welcomePrompt,
						},
					},
					"2": {
						Next: BookingStateDate,
						Messages: []Message{
							{Text: "Great, let's book your table. What date would you like? (DD/MM/YYYY)"},
						},
					},
					"3": {
						Next: BookingStateDate,
						Messages: []Message{
							{Text: "I'll pass your details along — first, which date were you asking about? (DD/MM/YYYY)"},
						},
					},
				},
			},
			BookingStateDate: {
				Name:      BookingStateDate,
				Prompt:    Message{Text: "What date would you like? (DD/MM/YYYY)"},
				Validator: DateValidator("date"),
				OnValid: Transition{
					Next:     BookingStateTime,
					Messages: []Message{{Text: "And what time? (HH:MM)"}},
				},
			},
			BookingStateTime: {
				Name:      BookingStateTime,
				Prompt:    Message{Text: "What time would you like? (HH:MM)"},
				Validator: TimeValidator("time"),
				OnValid: Transition{
					Next: BookingStatePartySize,
					Messages: []Message{
						{Text: fmt.Sprintf("How many people? (1–%d)", maxPartySize)},
					},
				},
			},
			BookingStatePartySize: {
				Name:      BookingStatePartySize,
				Prompt:    Message{Text: fmt.Sprintf("How many people will be joining? (1–%d)", maxPartySize)},
				Validator: IntRangeValidator("party_size", 1, maxPartySize),
				OnValid: Transition{
					Next: BookingStateConfirmed,
					Messages: []Message{
						{Text: "All set! Your table is booked. See you soon!"},
					},
					Artifact: ArtifactBooking,
				},
			},
			BookingStateConfirmed: {
				Name:     BookingStateConfirmed,
				Prompt:   Message{Text: "Your booking is confirmed. Message us again to start a new request."},
				Terminal: true,
			},
		},
	}
}
