// ABOUTME: Lead qualification vertical: name, budget band, callback number
// ABOUTME: Emits a Lead artifact once the contact details are captured

package flow

// LeadQualification builds the sales lead qualification flow.
func LeadQualification() *Definition {
	budgetPrompt := Message{
		Text: "What budget range are you working with?\n" +
			"1. Under $1,000\n" +
			"2. $1,000–$10,000\n" +
			"3. Over $10,000",
		QuickReplies: []string{"1", "2", "3"},
	}

	return &Definition{
		Name:     "lead",
		Triggers: []string{"quote", "price", "pricing", "interested", "demo", "sales"},
		Initial:  "welcome",
		States: map[string]*State{
			"welcome": {
				Name: "welcome",
				Prompt: Message{
					Text:         "Thanks for your interest! Would you like a quote?\n1. Yes please\n2. Just browsing",
					QuickReplies: []string{"1", "2"},
				},
				Choices: map[string]Transition{
					"1": {
						Next:     "awaiting_name",
						Messages: []Message{{Text: "Happy to help! What's your name?"}},
					},
					"2": {
						Next:     "welcome",
						Messages: []Message{{Text: "No problem — message us whenever you're ready."}},
					},
				},
			},
			"awaiting_name": {
				Name:      "awaiting_name",
				Prompt:    Message{Text: "Happy to help! What's your name?"},
				Validator: TextValidator("name", 2, "Could you share your name so we know who to ask for?"),
				OnValid: Transition{
					Next:     "awaiting_budget",
					Messages: []Message{budgetPrompt},
				},
			},
			"awaiting_budget": {
				Name:   "awaiting_budget",
				Prompt: budgetPrompt,
				Choices: map[string]Transition{
					"1": {
						Next:        "awaiting_phone",
						Messages:    []Message{{Text: "Got it. What's the best number to reach you on?"}},
						SlotUpdates: map[string]string{"budget": "under_1k"},
					},
					"2": {
						Next:        "awaiting_phone",
						Messages:    []Message{{Text: "Got it. What's the best number to reach you on?"}},
						SlotUpdates: map[string]string{"budget": "1k_10k"},
					},
					"3": {
						Next:        "awaiting_phone",
						Messages:    []Message{{Text: "Great. What's the best number to reach you on?"}},
						SlotUpdates: map[string]string{"budget": "over_10k"},
					},
				},
			},
			"awaiting_phone": {
				Name:      "awaiting_phone",
				Prompt:    Message{Text: "What's the best number to reach you on?"},
				Validator: PhoneValidator("phone"),
				OnValid: Transition{
					Next:     "qualified",
					Messages: []Message{{Text: "Thanks! Someone from the team will call you shortly."}},
					Artifact: ArtifactLead,
				},
			},
			"qualified": {
				Name:     "qualified",
				Prompt:   Message{Text: "We have your details — expect a call soon."},
				Terminal: true,
			},
		},
	}
}
