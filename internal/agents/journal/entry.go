// Package journal holds the parameters shared by the journal analysis agents.
package journal

import (
	"errors"
	"strings"

	"github.com/tradepsych/insight/internal/prompts"
)

// ErrEmptyEntry is returned for an entry with no text.
var ErrEmptyEntry = errors.New("journal entry is required")

// Entry is the input of every journal agent.
type Entry struct {
	JournalEntry string `json:"journalEntry"`

	// Enhancement is set by refinement runs and never read from requests.
	Enhancement prompts.Enhancement `json:"-"`
}

// Validate checks the entry has text.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.JournalEntry) == "" {
		return ErrEmptyEntry
	}
	return nil
}

// PromptEnhancement implements prompts.Enhancer.
func (e Entry) PromptEnhancement() prompts.Enhancement {
	return e.Enhancement
}

// WithEnhancement returns a copy of e carrying enh.
func (e Entry) WithEnhancement(enh prompts.Enhancement) Entry {
	e.Enhancement = enh
	return e
}
