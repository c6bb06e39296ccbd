package typeinfer

import (
	"testing"
	"time"

	"breachline/internal/column"
)

func TestResolveBoolean(t *testing.T) {
	s := NewState(time.UTC)
	for _, v := range []string{"true", "false", "yes", "no", "y"} {
		s.Observe(v)
	}
	res := s.Resolve()
	if res.Type != column.TypeBoolean {
		t.Fatalf("got %v, want boolean", res.Type)
	}
}

func TestResolveNumber(t *testing.T) {
	s := NewState(time.UTC)
	for _, v := range []string{"1.5", "2.5", "-3", "10", "42"} {
		s.Observe(v)
	}
	res := s.Resolve()
	if res.Type != column.TypeNumber {
		t.Fatalf("got %v, want number", res.Type)
	}
}

func TestResolveDatetimeEpoch(t *testing.T) {
	s := NewState(time.UTC)
	for i := 0; i < 5; i++ {
		s.Observe("1700000000000")
	}
	res := s.Resolve()
	if res.Type != column.TypeDatetime {
		t.Fatalf("got %v, want datetime", res.Type)
	}
	if res.MinDatetime == nil || res.MaxDatetime == nil {
		t.Fatal("expected min/max datetime to be tracked")
	}
}

func TestResolveStringFallback(t *testing.T) {
	s := NewState(time.UTC)
	for _, v := range []string{"apple", "banana", "42", "true"} {
		s.Observe(v)
	}
	res := s.Resolve()
	if res.Type != column.TypeString {
		t.Fatalf("got %v, want string (no candidate clears its threshold)", res.Type)
	}
}

func TestResolveEmptyColumnDefaultsToString(t *testing.T) {
	s := NewState(time.UTC)
	s.Observe("")
	s.Observe("   ")
	res := s.Resolve()
	if res.Type != column.TypeString {
		t.Fatalf("got %v, want string for all-null column", res.Type)
	}
	if s.Samples != 0 || s.NullCount != 2 {
		t.Fatalf("got samples=%d nulls=%d, want 0/2", s.Samples, s.NullCount)
	}
}

func TestObserveCapsExampleCount(t *testing.T) {
	s := NewState(time.UTC)
	for i := 0; i < 10; i++ {
		s.Observe(string(rune('a' + i)))
	}
	if len(s.Examples) != maxExamples {
		t.Fatalf("got %d examples, want %d", len(s.Examples), maxExamples)
	}
}

func TestParseTimestampMillis(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2023-05-01T12:00:00Z", true},
		{"2023-05-01", true},
		{"not-a-date", false},
	}
	for _, c := range cases {
		_, ok := ParseTimestampMillis(c.in, time.UTC)
		if ok != c.ok {
			t.Errorf("ParseTimestampMillis(%q) ok=%v, want %v", c.in, ok, c.ok)
		}
	}
}
