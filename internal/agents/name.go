// Package agents wires the concrete journal analysis agents and exposes
// them by name to the CLI and HTTP layers.
package agents

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAgent is returned for a name outside the registered set.
var ErrUnknownAgent = errors.New("unknown agent")

// Name identifies an agent.
type Name string

const (
	JournalReflection Name = "journal_reflection"
	Sentiment         Name = "sentiment"
	GeneralAnalysis   Name = "general_analysis"
)

// Names lists every agent in display order.
func Names() []Name {
	return []Name{JournalReflection, Sentiment, GeneralAnalysis}
}

// ParseName converts user input into a Name. Dashes are accepted in place
// of underscores.
func ParseName(s string) (Name, error) {
	n := Name(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch n {
	case JournalReflection, Sentiment, GeneralAnalysis:
		return n, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAgent, s)
}

func (n Name) String() string { return string(n) }
