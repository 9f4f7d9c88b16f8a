package clock

import (
	"testing"
	"time"
)

func TestReal_UTC(t *testing.T) {
	now := Real{}.Now()
	if now.Location() != time.UTC {
		t.Errorf("Real.Now() location = %v, want UTC", now.Location())
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", c.Now(), want)
	}

	later := start.Add(48 * time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("after Set Now() = %v, want %v", c.Now(), later)
	}
}
