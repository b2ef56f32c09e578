package stream

import (
	"math/big"
	"strings"
	"testing"
)

func TestSanitizeStreamID(t *testing.T) {
	if _, err := SanitizeStreamID("  "); err == nil {
		t.Fatal("expected error for blank id")
	}
	if _, err := SanitizeStreamID(strings.Repeat("x", MaxStreamIDLength+1)); err == nil {
		t.Fatal("expected error for oversized id")
	}
	id, err := SanitizeStreamID("  live-42  ")
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if id != "live-42" {
		t.Fatalf("expected trimmed id, got %q", id)
	}
}

func TestSanitizeStream(t *testing.T) {
	base := &Stream{ID: "s1", CreatorShare: 50, MinWatchPct: 50, Active: true}
	if _, err := SanitizeStream(base); err != nil {
		t.Fatalf("sanitize valid stream: %v", err)
	}

	overShare := base.Clone()
	overShare.CreatorShare = 101
	if _, err := SanitizeStream(overShare); err == nil {
		t.Fatal("expected error for creator share over 100")
	}
	overWatch := base.Clone()
	overWatch.MinWatchPct = 101
	if _, err := SanitizeStream(overWatch); err == nil {
		t.Fatal("expected error for min watch over 100")
	}
	negative := base.Clone()
	negative.TotalDonations = big.NewInt(-1)
	if _, err := SanitizeStream(negative); err == nil {
		t.Fatal("expected error for negative donation total")
	}
	if _, err := SanitizeStream(nil); err == nil {
		t.Fatal("expected error for nil stream")
	}
}

func TestStreamCloneIsDeep(t *testing.T) {
	s := &Stream{ID: "s1", TotalDonations: big.NewInt(10)}
	clone := s.Clone()
	clone.TotalDonations.SetInt64(99)
	if s.TotalDonations.Cmp(big.NewInt(10)) != 0 {
		t.Fatal("clone mutation leaked into original")
	}

	var nilStream *Stream
	if nilStream.Clone() != nil {
		t.Fatal("expected nil clone of nil stream")
	}

	r := &ViewerReward{StreamID: "s1", Amount: big.NewInt(5)}
	rc := r.Clone()
	rc.Amount.SetInt64(50)
	if r.Amount.Cmp(big.NewInt(5)) != 0 {
		t.Fatal("reward clone mutation leaked into original")
	}

	d := &Donation{StreamID: "s1"}
	if d.Clone().Amount == nil {
		t.Fatal("expected clone to normalise nil amount")
	}
}
