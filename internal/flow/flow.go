// ABOUTME: Core types for table-driven vertical flow definitions
// ABOUTME: A Definition maps (state, normalized input) to a Result; pure and immutable

package flow

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownState means a conversation references a state the definition does
// not declare. This is a programming or data-corruption error, never user input.
var ErrUnknownState = errors.New("unknown state")

// ArtifactType tags the terminal business object a flow can emit.
type ArtifactType string

const (
	ArtifactNone    ArtifactType = ""
	ArtifactBooking ArtifactType = "booking"
	ArtifactLead    ArtifactType = "lead"
	ArtifactTicket  ArtifactType = "ticket"
)

// Artifact is the durable business object produced when a flow completes.
// Created once, immutable, handed to the sink at least once.
type Artifact struct {
	Type           ArtifactType      `json:"artifact_type"`
	ConversationID string            `json:"conversation_id"`
	Vertical       string            `json:"vertical"`
	Fields         map[string]string `json:"fields"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Message is one outbound message produced by a transition.
type Message struct {
	Text         string   `json:"text"`
	QuickReplies []string `json:"quick_replies,omitempty"`
}

// Transition describes where a matched input leads and what it emits.
type Transition struct {
	Next        string
	Messages    []Message
	SlotUpdates map[string]string
	Artifact    ArtifactType
}

// Validator accepts free-form input for a state and produces a slot value.
// Check returns the canonical value to store, or an error whose message is
// shown to the user verbatim (so keep it human).
type Validator struct {
	Slot  string
	Check func(input string, now time.Time) (string, error)
}

// State is one node of a vertical's state machine. Exact matches in Choices
// win over the Validator; if neither accepts the input, the state's Prompt is
// re-emitted and the conversation does not advance.
type State struct {
	Name      string
	Prompt    Message
	Choices   map[string]Transition
	Validator *Validator
	// OnValid is applied when the Validator accepts; the validated value is
	// merged under Validator.Slot in addition to OnValid.SlotUpdates.
	OnValid  Transition
	Terminal bool
}

// Definition is an immutable vertical flow, loaded at process start and
// shared read-only across all conversations.
type Definition struct {
	Name     string
	Triggers []string // routing keywords, matched as substrings of normalized input
	Initial  string
	States   map[string]*State
	Synonyms map[string]string // normalization additions specific to this vertical
	// Stateless marks pure request/response verticals (FAQ lookups). They
	// accumulate no slots, so nothing is persisted between messages and the
	// next message is classified fresh.
	Stateless bool
}

// Result is the outcome of exactly one transition step.
type Result struct {
	Next        string
	Messages    []Message
	SlotUpdates map[string]string
	Artifact    ArtifactType
	// Advanced is false when the input failed validation and the state's
	// prompt was re-emitted.
	Advanced bool
	// Terminal is true when Next is a terminal state.
	Terminal bool
}

// Validate checks internal consistency: the initial state exists, every
// transition target is declared, and terminal states have no outgoing edges.
func (d *Definition) Validate() error {
	if _, ok := d.States[d.Initial]; !ok {
		return fmt.Errorf("flow %q: initial state %q not declared", d.Name, d.Initial)
	}
	for name, st := range d.States {
		if st.Name != name {
			return fmt.Errorf("flow %q: state key %q names itself %q", d.Name, name, st.Name)
		}
		if st.Terminal && (len(st.Choices) > 0 || st.Validator != nil) {
			return fmt.Errorf("flow %q: terminal state %q has outgoing transitions", d.Name, name)
		}
		for input, tr := range st.Choices {
			if _, ok := d.States[tr.Next]; !ok {
				return fmt.Errorf("flow %q: state %q input %q targets unknown state %q", d.Name, name, input, tr.Next)
			}
		}
		if st.Validator != nil {
			if _, ok := d.States[st.OnValid.Next]; !ok {
				return fmt.Errorf("flow %q: state %q OnValid targets unknown state %q", d.Name, name, st.OnValid.Next)
			}
		}
	}
	return nil
}

// IsTerminal reports whether the named state is terminal.
func (d *Definition) IsTerminal(state string) bool {
	st, ok := d.States[state]
	return ok && st.Terminal
}

// Prompt returns the declared prompt for a state, used when a conversation is
// created and the user should be greeted before any transition.
func (d *Definition) Prompt(state string) (Message, error) {
	st, ok := d.States[state]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s/%s", ErrUnknownState, d.Name, state)
	}
	return st.Prompt, nil
}

// Step computes one transition. It is a pure function of (state, slots,
// input, now): repeated invocation with the same arguments yields the same
// Result, which is what makes CAS retries safe.
func (d *Definition) Step(state string, slots map[string]string, input string, now time.Time) (Result, error) {
	st, ok := d.States[state]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s/%s", ErrUnknownState, d.Name, state)
	}
	if st.Terminal {
		// Defensive: the engine deletes conversations on terminal states, so
		// a message landing here restarts; report no-advance with the prompt.
		return Result{Next: state, Messages: []Message{st.Prompt}, Terminal: true}, nil
	}

	normalized := Normalize(input, d.Synonyms)

	if tr, ok := st.Choices[normalized]; ok {
		return d.resolve(tr, nil), nil
	}

	if st.Validator != nil {
		value, err := st.Validator.Check(normalized, now)
		if err == nil {
			extra := map[string]string{st.Validator.Slot: value}
			return d.resolve(st.OnValid, extra), nil
		}
		// Validation failed: explain, re-prompt, stay put
		return Result{
			Next:     state,
			Messages: []Message{{Text: err.Error()}, st.Prompt},
		}, nil
	}

	// No choice matched and no validator: nudge with the available options
	nudge := Message{Text: nudgeText(st), QuickReplies: st.Prompt.QuickReplies}
	return Result{
		Next:     state,
		Messages: []Message{nudge, st.Prompt},
	}, nil
}

// resolve materializes a Transition into a Result, merging extra slot values
// (from a validator) over the transition's declared updates.
func (d *Definition) resolve(tr Transition, extra map[string]string) Result {
	updates := make(map[string]string, len(tr.SlotUpdates)+len(extra))
	for k, v := range tr.SlotUpdates {
		updates[k] = v
	}
	for k, v := range extra {
		updates[k] = v
	}

	msgs := make([]Message, len(tr.Messages))
	copy(msgs, tr.Messages)

	return Result{
		Next:        tr.Next,
		Messages:    msgs,
		SlotUpdates: updates,
		Artifact:    tr.Artifact,
		Advanced:    true,
		Terminal:    d.IsTerminal(tr.Next),
	}
}

func nudgeText(st *State) string {
	n := len(st.Choices)
	if n == 0 {
		return "Sorry, I didn't understand that."
	}
	return fmt.Sprintf("Sorry, I didn't understand that. Please choose one of the %d options.", n)
}
