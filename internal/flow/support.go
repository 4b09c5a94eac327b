// ABOUTME: Support vertical: problem description plus urgency, then a ticket
// ABOUTME: Emits a Ticket artifact handed to the external ticketing system

package flow

// Support builds the support ticketing flow.
func Support() *Definition {
	urgencyPrompt := Message{
		Text: "How urgent is this?\n" +
			"1. Low — whenever you get to it\n" +
			"2. Normal\n" +
			"3. Urgent — I'm blocked",
		QuickReplies: []string{"1", "2", "3"},
	}

	return &Definition{
		Name:     "support",
		Triggers: []string{"help", "support", "problem", "issue", "broken", "complaint"},
		Initial:  "awaiting_description",
		States: map[string]*State{
			"awaiting_description": {
				Name:      "awaiting_description",
				Prompt:    Message{Text: "Sorry to hear you're having trouble. What's going on?"},
				Validator: TextValidator("description", 10, "Could you describe the problem in a bit more detail?"),
				OnValid: Transition{
					Next:     "awaiting_urgency",
					Messages: []Message{urgencyPrompt},
				},
			},
			"awaiting_urgency": {
				Name:   "awaiting_urgency",
				Prompt: urgencyPrompt,
				Choices: map[string]Transition{
					"1": {
						Next:        "ticketed",
						Messages:    []Message{{Text: "Thanks — we've logged your ticket and will follow up."}},
						SlotUpdates: map[string]string{"urgency": "low"},
						Artifact:    ArtifactTicket,
					},
					"2": {
						Next:        "ticketed",
						Messages:    []Message{{Text: "Thanks — we've logged your ticket and will follow up soon."}},
						SlotUpdates: map[string]string{"urgency": "normal"},
						Artifact:    ArtifactTicket,
					},
					"3": {
						Next:        "ticketed",
						Messages:    []Message{{Text: "Understood — we've flagged this as urgent and someone will be in touch fast."}},
						SlotUpdates: map[string]string{"urgency": "urgent"},
						Artifact:    ArtifactTicket,
					},
				},
			},
			"ticketed": {
				Name:     "ticketed",
				Prompt:   Message{Text: "Your ticket is filed. Message us again to open another."},
				Terminal: true,
			},
		},
	}
}
