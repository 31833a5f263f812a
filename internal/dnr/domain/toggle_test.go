package domain

import "testing"

func TestToggleStateAndMode(t *testing.T) {
	if ToggleOn.String() != "on" || ToggleOff.String() != "off" {
		t.Fatalf("unexpected strings: %s %s", ToggleOn, ToggleOff)
	}
	if ModeFor(ToggleOn) != ModeEnabled || ModeFor(ToggleOff) != ModeDisabled {
		t.Fatalf("ModeFor mapping wrong")
	}
	if ModeEnabled.String() != "enabled" || ModeDisabled.String() != "disabled" {
		t.Fatalf("unexpected mode strings")
	}
	var zero OverlayMode
	if zero != ModeDisabled {
		t.Fatalf("initial mode must be disabled")
	}
}

func TestMatchDecision(t *testing.T) {
	if NoMatch().IsBlocked() || NoMatch().IsRedirected() {
		t.Fatalf("no-match must allow")
	}
	d := MatchDecision{Matched: true, RuleID: 2, Action: BlockAction()}
	if !d.IsBlocked() || d.IsRedirected() {
		t.Fatalf("block decision wrong: %+v", d)
	}
	d = MatchDecision{Matched: true, RuleID: 1, Action: RedirectAction("https://x")}
	if d.IsBlocked() || !d.IsRedirected() {
		t.Fatalf("redirect decision wrong: %+v", d)
	}
}
