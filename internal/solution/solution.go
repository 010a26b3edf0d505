// Package solution defines the persisted data model: the item templates
// that make up a portable Solution, the container payload they are stored
// in, and the schema versioning that governs how a build order is derived.
package solution

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// CurrentSchemaVersion is written to every container item this code
// produces. Version 0 (legacy) Solutions stored their templates in
// arbitrary order; from version 1 on the template array order is the
// build order.
const CurrentSchemaVersion = 1

// Type keywords that mark a container item as a deployed Solution.
const (
	KeywordSolution = "Solution"
	KeywordDeployed = "Deployed"
)

// ItemTemplate is the templatized snapshot of one source item plus the
// ids of the items it references.
type ItemTemplate struct {
	// ItemID is the original identifier of the source item. Opaque and
	// unique within a Solution.
	ItemID string `json:"itemId"`

	// Type selects the adapter used to materialize the item. The
	// orchestration core does not interpret it.
	Type string `json:"type"`

	// Key is the camelized form of the item title, used as a secondary
	// identifier in templatized payloads.
	Key string `json:"key,omitempty"`

	// Item, Data, and Properties are arbitrary nested JSON payloads that
	// may embed identifiers and URLs anywhere, including inside strings.
	Item       json.RawMessage `json:"item,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`

	// Resources lists auxiliary payloads copied verbatim at deploy time.
	Resources []json.RawMessage `json:"resources,omitempty"`

	// Dependencies holds the original ids this item references. May be
	// empty or nil. Ids that name no template in the same Solution carry
	// no ordering constraint.
	Dependencies []string `json:"dependencies,omitempty"`

	// Groups holds the original ids of groups the created item should be
	// shared to after creation.
	Groups []string `json:"groups,omitempty"`

	// EstimatedDeploymentCostFactor weights this item's share of progress
	// reporting. It is not a correctness input; values <= 0 count as 1.
	EstimatedDeploymentCostFactor float64 `json:"estimatedDeploymentCostFactor,omitempty"`
}

// CostWeight returns the template's progress weight, defaulting to 1.
func (t ItemTemplate) CostWeight() float64 {
	if t.EstimatedDeploymentCostFactor <= 0 {
		return 1
	}
	return t.EstimatedDeploymentCostFactor
}

// Solution is the data payload of a container item: the ordered template
// collection plus a free-form metadata blob.
type Solution struct {
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Templates []ItemTemplate  `json:"templates"`
}

// Template returns the template with the given original id, if present.
func (s *Solution) Template(itemID string) (ItemTemplate, bool) {
	for _, t := range s.Templates {
		if t.ItemID == itemID {
			return t, true
		}
	}
	return ItemTemplate{}, false
}

// TotalCostWeight sums the progress weights of all templates.
func (s *Solution) TotalCostWeight() float64 {
	var total float64
	for _, t := range s.Templates {
		total += t.CostWeight()
	}
	return total
}

// Marshal serializes the Solution as a container item's data payload.
func (s *Solution) Marshal() (json.RawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling solution payload: %w", err)
	}
	return raw, nil
}

// Unmarshal parses a container item's data payload into a Solution.
func Unmarshal(raw json.RawMessage) (*Solution, error) {
	var s Solution
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing solution payload: %w", err)
	}
	return &s, nil
}

// IsDeployed reports whether a container item's type keywords mark it as
// a deployed Solution.
func IsDeployed(typeKeywords []string) bool {
	var solution, deployed bool
	for _, kw := range typeKeywords {
		switch kw {
		case KeywordSolution:
			solution = true
		case KeywordDeployed:
			deployed = true
		}
	}
	return solution && deployed
}

// Camelize derives a template key from an item title: alphanumeric runs
// become words, the first word lowercased and the rest title-cased.
// "Crowdsource Manager" yields "crowdsourceManager".
func Camelize(title string) string {
	var b strings.Builder
	word := 0
	inWord := false
	for _, r := range title {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			inWord = false
			continue
		}
		switch {
		case !inWord && word == 0:
			b.WriteRune(unicode.ToLower(r))
		case !inWord:
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(unicode.ToLower(r))
		}
		if !inWord {
			inWord = true
			word++
		}
	}
	return b.String()
}
