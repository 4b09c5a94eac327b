// ABOUTME: Salon appointment vertical: service selection, date, time
// ABOUTME: Emits a Booking artifact tagged with the chosen service

package flow

// SalonBooking builds the salon appointment flow.
func SalonBooking() *Definition {
	servicePrompt := Message{
		Text: "Which service would you like?\n" +
			"1. Haircut\n" +
			"2. Color\n" +
			"3. Manicure",
		QuickReplies: []string{"1", "2", "3"},
	}

	return &Definition{
		Name:     "salon",
		Triggers: []string{"salon", "haircut", "appointment", "manicure", "color"},
		Initial:  "awaiting_service",
		Synonyms: map[string]string{
			"haircut":  "1",
			"cut":      "1",
			"color":    "2",
			"dye":      "2",
			"manicure": "3",
			"nails":    "3",
		},
		States: map[string]*State{
			"awaiting_service": {
				Name:   "awaiting_service",
				Prompt: servicePrompt,
				Choices: map[string]Transition{
					"1": {
						Next:        "awaiting_date",
						Messages:    []Message{{Text: "Haircut it is. Which day suits you? (DD/MM/YYYY)"}},
						SlotUpdates: map[string]string{"service": "haircut"},
					},
					"2": {
						Next:        "awaiting_date",
						Messages:    []Message{{Text: "Color it is. Which day suits you? (DD/MM/YYYY)"}},
						SlotUpdates: map[string]string{"service": "color"},
					},
					"3": {
						Next:        "awaiting_date",
						Messages:    []Message{{Text: "Manicure it is. Which day suits you? (DD/MM/YYYY)"}},
						SlotUpdates: map[string]string{"service": "manicure"},
					},
				},
			},
			"awaiting_date": {
				Name:      "awaiting_date",
				Prompt:    Message{Text: "Which day suits you? (DD/MM/YYYY)"},
				Validator: DateValidator("date"),
				OnValid: Transition{
					Next:     "awaiting_time",
					Messages: []Message{{Text: "And what time? (HH:MM)"}},
				},
			},
			"awaiting_time": {
				Name:      "awaiting_time",
				Prompt:    Message{Text: "What time works for you? (HH:MM)"},
				Validator: TimeValidator("time"),
				OnValid: Transition{
					Next:     "confirmed",
					Messages: []Message{{Text: "Booked! We'll see you then."}},
					Artifact: ArtifactBooking,
				},
			},
			"confirmed": {
				Name:     "confirmed",
				Prompt:   Message{Text: "Your appointment is confirmed. Message us again for anything else."},
				Terminal: true,
			},
		},
	}
}
