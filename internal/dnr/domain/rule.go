package domain

import (
	"encoding/json"
	"fmt"
)

const (
	// OverlayRuleID is reserved for the mode overlay rule. Rules authored
	// outside dnrc must never use it.
	OverlayRuleID = 1
	// FirstBulkRuleID is the id given to the first compiled block rule.
	FirstBulkRuleID = 2
	// DefaultRulePriority is the priority of every compiled block rule and the overlay.
	DefaultRulePriority = 1
	// MatchAllURLFilter matches every request URL.
	MatchAllURLFilter = "*"
)

// ActionType selects what the engine does with a matching request.
type ActionType string

const (
	ActionBlock    ActionType = "block"
	ActionRedirect ActionType = "redirect"
)

// Redirect holds the target of a redirect action.
type Redirect struct {
	URL string `json:"url"`
}

// Action is a tagged variant: Block, or Redirect with a target URL.
type Action struct {
	Type     ActionType `json:"type"`
	Redirect *Redirect  `json:"redirect,omitempty"`
}

// BlockAction returns the block action.
func BlockAction() Action { return Action{Type: ActionBlock} }

// RedirectAction returns a redirect action targeting url.
func RedirectAction(url string) Action {
	return Action{Type: ActionRedirect, Redirect: &Redirect{URL: url}}
}

// Validate checks the action variant is well formed.
func (a Action) Validate() error {
	switch a.Type {
	case ActionBlock:
		if a.Redirect != nil {
			return fmt.Errorf("block action must not carry a redirect target")
		}
	case ActionRedirect:
		if a.Redirect == nil || a.Redirect.URL == "" {
			return fmt.Errorf("redirect action requires a target url")
		}
	default:
		return fmt.Errorf("unsupported action type: %q", a.Type)
	}
	return nil
}

// Condition describes which requests a rule applies to.
type Condition struct {
	URLFilter     string         `json:"urlFilter"`
	ResourceTypes []ResourceType `json:"resourceTypes"`
}

// CompiledRule is an engine-ready declarative rule.
type CompiledRule struct {
	ID        int       `json:"id"`
	Priority  int       `json:"priority"`
	Action    Action    `json:"action"`
	Condition Condition `json:"condition"`
}

// NewBlockRule builds a bulk block rule for pattern covering every resource type.
func NewBlockRule(id int, pattern string) CompiledRule {
	return CompiledRule{
		ID:       id,
		Priority: DefaultRulePriority,
		Action:   BlockAction(),
		Condition: Condition{
			URLFilter:     pattern,
			ResourceTypes: AllResourceTypes(),
		},
	}
}

// NewOverlayRule builds the reserved restriction rule that redirects every
// top-level navigation to target.
func NewOverlayRule(target string) CompiledRule {
	return CompiledRule{
		ID:       OverlayRuleID,
		Priority: DefaultRulePriority,
		Action:   RedirectAction(target),
		Condition: Condition{
			URLFilter:     MatchAllURLFilter,
			ResourceTypes: []ResourceType{ResourceMainFrame},
		},
	}
}

// Validate checks the rule for required fields and supported values.
func (r CompiledRule) Validate() error {
	if r.ID < 1 {
		return fmt.Errorf("rule id must be positive, got %d", r.ID)
	}
	if r.Priority < 1 {
		return fmt.Errorf("rule %d: priority must be positive, got %d", r.ID, r.Priority)
	}
	if err := r.Action.Validate(); err != nil {
		return fmt.Errorf("rule %d: %w", r.ID, err)
	}
	if r.Condition.URLFilter == "" {
		return fmt.Errorf("rule %d: urlFilter must not be empty", r.ID)
	}
	if len(r.Condition.ResourceTypes) == 0 {
		return fmt.Errorf("rule %d: at least one resource type is required", r.ID)
	}
	for _, rt := range r.Condition.ResourceTypes {
		if !rt.IsValid() {
			return fmt.Errorf("rule %d: unsupported resource type %q", r.ID, rt)
		}
	}
	return nil
}

// IsOverlay reports whether r occupies the reserved overlay slot.
func (r CompiledRule) IsOverlay() bool { return r.ID == OverlayRuleID }

// AppliesTo reports whether the rule's condition lists resource type t.
func (r CompiledRule) AppliesTo(t ResourceType) bool {
	for _, rt := range r.Condition.ResourceTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// RuleIDs returns the ids of rules in order.
func RuleIDs(rules []CompiledRule) []int {
	ids := make([]int, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

// EncodeRules renders rules as an indented declarativeNetRequest JSON array.
// A nil slice encodes as [] rather than null.
func EncodeRules(rules []CompiledRule) ([]byte, error) {
	if rules == nil {
		rules = []CompiledRule{}
	}
	return json.MarshalIndent(rules, "", "  ")
}

// ValidateBatch validates every rule and checks that ids are pairwise
// distinct. Failures wrap ErrInvalidRule.
func ValidateBatch(rules []CompiledRule) error {
	seen := make(map[int]struct{}, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rule id %d", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}
