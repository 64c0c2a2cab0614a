package models

import "testing"

func TestVotes(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234,567", 1234567, true},
		{"987", 987, true},
		{" 42 ", 42, true},
		{"N/A", 0, false},
		{"", 0, false},
		{"lots", 0, false},
	}
	for _, tc := range cases {
		f := Film{ImdbVotes: tc.in}
		got, ok := f.Votes()
		if got != tc.want || ok != tc.ok {
			t.Errorf("Votes(%q) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRating(t *testing.T) {
	f := Film{ImdbRating: "8.3"}
	if v, ok := f.Rating(); !ok || v != 8.3 {
		t.Fatalf("Rating() = (%v, %v)", v, ok)
	}
	f = Film{ImdbRating: "N/A"}
	if _, ok := f.Rating(); ok {
		t.Fatal("expected no rating for N/A")
	}
}

func TestRuntimeMinutes(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"142 min", 142, true},
		{"95", 95, true},
		{"5400S", 90, true},
		{"3600s", 60, true},
		{"N/A", 0, false},
		{"nan", 0, false},
		{"", 0, false},
		{"ninety min", 0, false},
	}
	for _, tc := range cases {
		f := Film{Runtime: tc.in}
		got, ok := f.RuntimeMinutes()
		if got != tc.want || ok != tc.ok {
			t.Errorf("RuntimeMinutes(%q) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestHasSecondsMarker(t *testing.T) {
	if !(&Film{Runtime: "5400S"}).HasSecondsMarker() {
		t.Error("expected marker on 5400S")
	}
	if (&Film{Runtime: "142 min"}).HasSecondsMarker() {
		t.Error("unexpected marker on 142 min")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList("Drama, Crime , , N/A, Thriller")
	want := []string{"Drama", "Crime", "Thriller"}
	if len(got) != len(want) {
		t.Fatalf("SplitList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitList = %v, want %v", got, want)
		}
	}
	if SplitList("N/A") != nil {
		t.Error("expected nil for N/A")
	}
	if SplitList("") != nil {
		t.Error("expected nil for empty input")
	}
}
