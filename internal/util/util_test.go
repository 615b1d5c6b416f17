package util

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateGroupCode(t *testing.T) {
	code := GenerateGroupCode(6)
	if len(code) != 6 {
		t.Errorf("expected 6 characters, got %d", len(code))
	}
	for _, c := range code {
		if !strings.ContainsRune(GroupCodeAlphabet, c) {
			t.Errorf("character %q outside alphabet", c)
		}
	}
	if GenerateGroupCode(0) != "" {
		t.Error("zero length should produce empty code")
	}
}

func TestGroupCodeAlphabetExcludesAmbiguousCharacters(t *testing.T) {
	for _, c := range "0O1lIo" {
		if strings.ContainsRune(GroupCodeAlphabet, c) {
			t.Errorf("ambiguous character %q in alphabet", c)
		}
	}
}

func TestIsBeforeDay(t *testing.T) {
	now := time.Date(2026, 4, 15, 13, 30, 0, 0, time.UTC)

	before, err := IsBeforeDay("2026-04-14", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !before {
		t.Error("yesterday should be before today")
	}

	before, err = IsBeforeDay("2026-04-15", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before {
		t.Error("same day should not be before today")
	}

	before, err = IsBeforeDay("2026-04-16", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before {
		t.Error("tomorrow should not be before today")
	}

	if _, err := IsBeforeDay("tomorrow", now); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestIsClockBefore(t *testing.T) {
	before, err := IsClockBefore("00:00", "00:01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !before {
		t.Error("00:00 should be before 00:01")
	}

	before, err = IsClockBefore("23:59", "00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before {
		t.Error("23:59 should not be before 00:00")
	}

	before, err = IsClockBefore("18:00", "18:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before {
		t.Error("equal times are not strictly before")
	}
}

func TestMessageDateFormat(t *testing.T) {
	// 2024-08-01 is a Thursday.
	if got := MessageDateFormat("2024-08-01"); got != "08/01(木)" {
		t.Errorf("unexpected format: %s", got)
	}
	// 2026-04-19 is a Sunday.
	if got := MessageDateFormat("2026-04-19"); got != "04/19(日)" {
		t.Errorf("unexpected format: %s", got)
	}
	if got := MessageDateFormat("not-a-date"); got != "not-a-date" {
		t.Errorf("malformed date should pass through, got %s", got)
	}
}
