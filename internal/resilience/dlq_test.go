package resilience

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]error{
		ClassCircuitOpen: ErrCircuitOpen,
		ClassRateLimited: &RateLimitError{},
		ClassTransient:   NewTransientError(errors.New("x"), 502),
		ClassPermanent:   errors.New("404"),
	}
	for want, err := range cases {
		if got := ClassifyError(err); got != want {
			t.Errorf("ClassifyError(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestDLQ_PushAndList(t *testing.T) {
	q := NewDLQ(10)
	q.Push("https://a.com", errors.New("404"))
	q.Push("https://b.com", &RateLimitError{})
	e := q.Push("https://a.com", errors.New("410"))

	if e.Attempts != 2 || e.Error != "410" {
		t.Errorf("expected updated entry, got %+v", e)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", q.Len())
	}
	if e.ID == "" {
		t.Error("expected entry id")
	}

	rl := q.List(DLQFilter{ErrorType: ClassRateLimited})
	if len(rl) != 1 || rl[0].URL != "https://b.com" {
		t.Errorf("unexpected filtered list: %+v", rl)
	}

	all := q.List(DLQFilter{Limit: 1})
	if len(all) != 1 || all[0].URL != "https://b.com" {
		t.Errorf("expected most recent first, got %+v", all)
	}
}

func TestDLQ_Bounded(t *testing.T) {
	q := NewDLQ(2)
	q.Push("1", errors.New("x"))
	q.Push("2", errors.New("x"))
	q.Push("3", errors.New("x"))

	if q.Len() != 2 {
		t.Fatalf("expected 2, got %d", q.Len())
	}
	if q.Remove("1") {
		t.Error("oldest entry should have been evicted")
	}
	if !q.Remove("3") {
		t.Error("expected to remove entry 3")
	}
}
