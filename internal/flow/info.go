// ABOUTME: Info/FAQ vertical: stateless request/response lookups
// ABOUTME: Single active state, never terminal, also the routing fallback

package flow

// InfoVertical is the designated fallback when no trigger matches and the
// identity has no stored preference.
const InfoVertical = "info"

// Info builds the FAQ flow. It has a single state and never completes; every
// lookup answers and returns to the same state.
func Info() *Definition {
	topics := Message{
		Text: "I can help with:\n" +
			"- hours\n" +
			"- address\n" +
			"- menu\n" +
			"- contact\n" +
			"Just send one of those words.",
	}

	answer := func(text string) Transition {
		return Transition{
			Next:     "active",
			Messages: []Message{{Text: text}},
		}
	}

	return &Definition{
		Name:      InfoVertical,
		Triggers:  []string{"info", "faq", "hours", "address", "menu", "contact", "where"},
		Initial:   "active",
		Stateless: true,
		Synonyms: map[string]string{
			"opening hours": "hours",
			"location":      "address",
			"where are you": "address",
			"phone":         "contact",
			"email":         "contact",
		},
		States: map[string]*State{
			"active": {
				Name:   "active",
				Prompt: topics,
				Choices: map[string]Transition{
					"hours":   answer("We're open Tuesday to Sunday, 12:00–23:00."),
					"address": answer("You'll find us at 14 Harbour Lane, third door on the left."),
					"menu":    answer("Today's menu is at example.com/menu — updated every morning."),
					"contact": answer("Call us on +1 555 0100 or email hello@example.com."),
				},
			},
		},
	}
}
