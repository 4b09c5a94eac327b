// ABOUTME: Intent router resolving inbound messages to a vertical
// ABOUTME: Active conversation wins, then trigger patterns, then stored preference, then Info

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bellhop-chat/bellhop/internal/flow"
	"github.com/bellhop-chat/bellhop/internal/store"
)

// Classifier maps free text to a vertical name. The default implementation
// is trigger-pattern matching; a learned model can be plugged in instead.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, bool)
}

// PreferenceStore is the slice of the conversation store the router needs.
type PreferenceStore interface {
	Get(ctx context.Context, id store.Identity) (*store.Conversation, error)
	GetPreference(ctx context.Context, id store.Identity) (string, error)
}

// Router resolves the vertical for an inbound message.
type Router struct {
	registry   *flow.Registry
	store      PreferenceStore
	classifier Classifier
	logger     *slog.Logger
}

// New creates a Router. If classifier is nil, trigger-pattern matching over
// the registry is used.
func New(registry *flow.Registry, prefs PreferenceStore, classifier Classifier, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = NewPatternClassifier(registry)
	}
	return &Router{
		registry:   registry,
		store:      prefs,
		classifier: classifier,
		logger:     logger.With("component", "router"),
	}
}

// Classify resolves the vertical for an inbound message:
//
//  1. an existing non-terminal conversation keeps its vertical — never
//     reclassify mid-flow
//  2. first classifier match (trigger patterns in registration order)
//  3. the identity's stored preference (last-used vertical)
//  4. the Info vertical
func (r *Router) Classify(ctx context.Context, text string, id store.Identity) (string, error) {
	conv, err := r.store.Get(ctx, id)
	if err == nil {
		if def, ok := r.registry.Get(conv.Vertical); ok && !def.IsTerminal(conv.CurrentState) {
			return conv.Vertical, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("loading conversation: %w", err)
	}

	if name, ok := r.classifier.Classify(ctx, text); ok {
		if _, registered := r.registry.Get(name); registered {
			return name, nil
		}
		r.logger.Warn("classifier returned unregistered vertical", "vertical", name)
	}

	if pref, err := r.store.GetPreference(ctx, id); err == nil {
		if _, registered := r.registry.Get(pref); registered {
			r.logger.Debug("routing by stored preference", "vertical", pref)
			return pref, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("loading preference: %w", err)
	}

	return flow.InfoVertical, nil
}

// PatternClassifier matches trigger keywords against normalized input,
// first match wins in definition-registration order.
type PatternClassifier struct {
	registry *flow.Registry
}

// NewPatternClassifier creates a trigger-based classifier over the registry.
func NewPatternClassifier(registry *flow.Registry) *PatternClassifier {
	return &PatternClassifier{registry: registry}
}

// Classify returns the first vertical whose trigger appears in the text.
func (c *PatternClassifier) Classify(ctx context.Context, text string) (string, bool) {
	normalized := flow.Normalize(text, nil)
	for _, def := range c.registry.All() {
		for _, trigger := range def.Triggers {
			if containsWord(normalized, trigger) {
				return def.Name, true
			}
		}
	}
	return "", false
}

// containsWord reports whether w appears as a whole word in s.
func containsWord(s, w string) bool {
	for _, field := range strings.Fields(s) {
		if strings.Trim(field, ".,!?") == w {
			return true
		}
	}
	return false
}
