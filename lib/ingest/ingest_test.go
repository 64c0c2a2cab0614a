package ingest

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"io"
	"log/slog"
)

var exportFiles = map[string]string{
	"watched.csv": "Date,Name,Year,Letterboxd URI\n" +
		"2024-01-02,Heat,1995,https://example.test/heat\n" +
		"2024-02-03,Ran,1985.0,https://example.test/ran\n" +
		"2024-03-04,Broken,unknown,https://example.test/broken\n",
	"watchlist.csv": "Date,Name,Year,Letterboxd URI\n" +
		"2024-01-05,Stalker,1979,https://example.test/stalker\n",
	"ratings.csv": "Date,Name,Year,Letterboxd URI,Rating\n" +
		"2024-01-02,Heat,1995,https://example.test/heat,4.5\n" +
		"2024-02-03,Ran,1985,https://example.test/ran,junk\n",
	"reviews.csv": "Date,Name,Year,Letterboxd URI,Rating,Rewatch,Review,Tags,Watched Date\n" +
		"2024-01-02,Heat,1995,https://example.test/heat,4.5,No,Great heist film,,2024-01-02\n",
	"comments.csv": "Date,Comment\n" +
		"2024-01-03,Agreed\n",
	"profile.csv": "Date Joined,Username,Given Name,Family Name,Email Address\n" +
		"2021-06-15,alice,Alice,,alice@example.test\n",
}

func writeArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func testIngestor() *Ingestor {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestIngest(t *testing.T) {
	path := writeArchive(t, exportFiles)

	up, err := testIngestor().Ingest(path, t.TempDir())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// The float-formatted year normalizes; the non-numeric row is dropped.
	if len(up.Watched) != 2 {
		t.Fatalf("expected 2 watched rows, got %d", len(up.Watched))
	}
	if up.Watched[1].Year != "1985" {
		t.Errorf("Year = %q, want normalized 1985", up.Watched[1].Year)
	}

	if len(up.Watchlist) != 1 || up.Watchlist[0].Name != "Stalker" {
		t.Fatalf("unexpected watchlist: %+v", up.Watchlist)
	}

	// The unparseable rating row is dropped.
	if len(up.Ratings) != 1 {
		t.Fatalf("expected 1 rating row, got %d", len(up.Ratings))
	}
	if up.Ratings[0].Rating != 4.5 {
		t.Errorf("Rating = %v, want 4.5", up.Ratings[0].Rating)
	}

	if len(up.Reviews) != 1 || up.Reviews[0].Text != "Great heist film" {
		t.Fatalf("unexpected reviews: %+v", up.Reviews)
	}
	if len(up.Comments) != 1 || up.Comments[0].Text != "Agreed" {
		t.Fatalf("unexpected comments: %+v", up.Comments)
	}
	if up.Profile.Username != "alice" || up.Profile.DateJoined != "2021-06-15" {
		t.Fatalf("unexpected profile: %+v", up.Profile)
	}
}

func TestIngest_NotAZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.zip")
	if err := os.WriteFile(path, []byte("this is a text file"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := testIngestor().Ingest(path, dir)
	if !errors.Is(err, ErrBadArchive) {
		t.Fatalf("expected ErrBadArchive, got %v", err)
	}
}

func TestIngest_MissingFile(t *testing.T) {
	partial := make(map[string]string, len(exportFiles))
	for name, body := range exportFiles {
		if name == "ratings.csv" {
			continue
		}
		partial[name] = body
	}
	path := writeArchive(t, partial)

	_, err := testIngestor().Ingest(path, t.TempDir())
	var missing *MissingFileError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFileError, got %v", err)
	}
	if missing.Name != "ratings.csv" {
		t.Fatalf("wrong missing file: %q", missing.Name)
	}
}

func TestIngest_MissingColumn(t *testing.T) {
	broken := make(map[string]string, len(exportFiles))
	for name, body := range exportFiles {
		broken[name] = body
	}
	broken["watched.csv"] = "Date,Title\n2024-01-02,Heat\n"
	path := writeArchive(t, broken)

	if _, err := testIngestor().Ingest(path, t.TempDir()); err == nil {
		t.Fatal("expected an error for a missing required column")
	}
}

func TestNormalizeYear(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1999", "1999", true},
		{"1999.0", "1999", true},
		{" 2001 ", "2001", true},
		{"", "", false},
		{"unknown", "", false},
		{"N/A", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeYear(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeYear(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestYears(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	years, err := Years(Profile{Username: "alice", DateJoined: "2021-06-15"}, now)
	if err != nil {
		t.Fatalf("Years: %v", err)
	}

	want := []string{"Alltime", "2024", "2023", "2022", "2021"}
	if len(years) != len(want) {
		t.Fatalf("got %v, want %v", years, want)
	}
	for i := range want {
		if years[i] != want[i] {
			t.Fatalf("got %v, want %v", years, want)
		}
	}
}

func TestYears_BadDate(t *testing.T) {
	if _, err := Years(Profile{DateJoined: "whenever"}, time.Now()); err == nil {
		t.Fatal("expected an error for an unreadable join date")
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-01-02", "2024-01-02 15:04:05", "2024-01-02T15:04:05Z", "02 Jan 2024"} {
		tm, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", in, err)
			continue
		}
		if tm.Year() != 2024 {
			t.Errorf("ParseDate(%q) year = %d", in, tm.Year())
		}
	}
	if _, err := ParseDate("not a date"); err == nil {
		t.Error("expected an error for junk input")
	}
}
