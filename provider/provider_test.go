package provider

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestJoinResultJSON(t *testing.T) {
	for r := JoinSuccess; r <= JoinUnknownError; r++ {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", r, err)
		}
		if string(data) != `"`+r.String()+`"` {
			t.Fatalf("expected %v encoded by name, got %s", r, data)
		}
		var got JoinResult
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if got != r {
			t.Fatalf("decoded %v, want %v", got, r)
		}
	}

	var got JoinResult
	if err := json.Unmarshal([]byte(`"Teleported"`), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != JoinUnknownError {
		t.Fatalf("unknown names must decode to JoinUnknownError, got %v", got)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := (Settings{NumPublicConnections: 1}).Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := (Settings{}).Validate(); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}

func TestSettingsClone(t *testing.T) {
	s := Settings{NumPublicConnections: 2, Attributes: map[string]string{MatchTypeKey: "FreeForAll"}}
	c := s.Clone()
	c.Attributes[MatchTypeKey] = "Teams"
	if v, _ := s.Get(MatchTypeKey); v != "FreeForAll" {
		t.Fatalf("clone shares attributes with the original, got %q", v)
	}
}

func TestSearchResultsAreCopied(t *testing.T) {
	var s Search
	s.SetResults([]SearchResult{{SessionID: "a"}, {SessionID: "b"}})
	got := s.Results()
	got[0].SessionID = "z"
	if s.Results()[0].SessionID != "a" {
		t.Fatal("Results must return a copy")
	}
	if len((&Search{}).Results()) != 0 {
		t.Fatal("expected no results on a fresh search")
	}
}

func TestDelegates(t *testing.T) {
	var d Delegates
	var calls []string

	h1 := d.AddOnCreateSessionComplete(func(name Name, ok bool) { calls = append(calls, "first") })
	h2 := d.AddOnCreateSessionComplete(func(name Name, ok bool) { calls = append(calls, "second") })
	if !h1.Valid() || !h2.Valid() || h1 == h2 {
		t.Fatalf("expected distinct valid handles, got %d and %d", h1, h2)
	}
	if d.LiveHooks() != 2 {
		t.Fatalf("expected 2 live hooks, got %d", d.LiveHooks())
	}

	d.TriggerCreateSessionComplete(GameSession, true)
	d.ClearOnCreateSessionComplete(h1)
	d.ClearOnCreateSessionComplete(h1)
	d.TriggerCreateSessionComplete(GameSession, true)

	want := []string{"first", "second", "second"}
	if len(calls) != len(want) {
		t.Fatalf("got %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("got %v, want %v", calls, want)
		}
	}

	// A hook may clear itself while being delivered.
	var h Handle
	n := 0
	h = d.AddOnFindSessionsComplete(func(bool) {
		n++
		d.ClearOnFindSessionsComplete(h)
	})
	d.TriggerFindSessionsComplete(true)
	d.TriggerFindSessionsComplete(true)
	if n != 1 {
		t.Fatalf("expected self-clearing hook to run once, got %d", n)
	}

	d.ClearOnCreateSessionComplete(h2)
	if d.LiveHooks() != 0 {
		t.Fatalf("expected no live hooks, got %d", d.LiveHooks())
	}
}

func TestStateString(t *testing.T) {
	if StatePending.String() != "Pending" || State(42).String() != "State(42)" {
		t.Fatalf("unexpected state names %q %q", StatePending, State(42))
	}
}
