package domain

// MatchDecision is the outcome of evaluating one request against installed rules.
type MatchDecision struct {
	Matched bool
	RuleID  int
	Action  Action
	Filter  string // urlFilter of the winning rule
}

// IsBlocked is true when the winning rule blocks the request.
func (d MatchDecision) IsBlocked() bool { return d.Matched && d.Action.Type == ActionBlock }

// IsRedirected is true when the winning rule redirects the request.
func (d MatchDecision) IsRedirected() bool { return d.Matched && d.Action.Type == ActionRedirect }

// NoMatch returns an allow decision.
func NoMatch() MatchDecision { return MatchDecision{} }
