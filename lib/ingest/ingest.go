// Package ingest parses a user's exported archive: a zip holding six CSV
// tables (watched, watchlist, ratings, reviews, profile, comments) at its
// root. It validates the archive, extracts it into the session directory,
// normalizes year columns and derives the available analysis years.
package ingest

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

// ErrBadArchive marks an upload that is not a readable zip file. The caller
// resets the upload state and asks the user to retry.
var ErrBadArchive = errors.New("uploaded file is not a valid zip archive")

// MissingFileError reports a required export file absent from the archive.
// This is fatal for the session.
type MissingFileError struct {
	Name string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("required file missing from archive: %s", e.Name)
}

// RequiredFiles are the six export tables every archive must contain.
var RequiredFiles = []string{
	"watchlist.csv",
	"watched.csv",
	"ratings.csv",
	"reviews.csv",
	"profile.csv",
	"comments.csv",
}

// ListEntry is one row of a watched or watchlist export.
type ListEntry struct {
	Name string
	Year string
	Date string // user's log date, raw; parsed leniently downstream
}

// RatingEntry is one row of the ratings export. Rating is on the provider's
// native half-star 0-5 scale; the reconciler scales it x2.
type RatingEntry struct {
	Name   string
	Year   string
	Date   string
	Rating float64
}

// Review is one row of the reviews export.
type Review struct {
	Name string
	Year string
	Date string
	Text string
}

// Comment is one row of the comments export.
type Comment struct {
	Date string
	Text string
}

// Profile is the first row of the profile export.
type Profile struct {
	Username   string
	DateJoined string
}

// Upload holds the parsed tables of one user archive.
type Upload struct {
	Watchlist []ListEntry
	Watched   []ListEntry
	Ratings   []RatingEntry
	Reviews   []Review
	Comments  []Comment
	Profile   Profile
}

type Ingestor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Ingestor {
	return &Ingestor{logger: logger}
}

// Ingest extracts the archive at archivePath into destDir and parses the six
// required tables. List-table years are normalized to integer-valued
// strings; rows with non-numeric years are dropped.
func (ig *Ingestor) Ingest(archivePath, destDir string) (*Upload, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			ig.logger.Error("failed to close archive", slog.Any("error", err))
		}
	}()

	present := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		present[f.Name] = f
	}

	for _, name := range RequiredFiles {
		f, ok := present[name]
		if !ok {
			return nil, &MissingFileError{Name: name}
		}
		if err := extract(f, filepath.Join(destDir, name)); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", name, err)
		}
	}

	up := &Upload{}

	if up.Watchlist, err = ig.readList(filepath.Join(destDir, "watchlist.csv")); err != nil {
		return nil, err
	}
	if up.Watched, err = ig.readList(filepath.Join(destDir, "watched.csv")); err != nil {
		return nil, err
	}
	if up.Ratings, err = ig.readRatings(filepath.Join(destDir, "ratings.csv")); err != nil {
		return nil, err
	}
	if up.Reviews, err = ig.readReviews(filepath.Join(destDir, "reviews.csv")); err != nil {
		return nil, err
	}
	if up.Comments, err = ig.readComments(filepath.Join(destDir, "comments.csv")); err != nil {
		return nil, err
	}
	if up.Profile, err = ig.readProfile(filepath.Join(destDir, "profile.csv")); err != nil {
		return nil, err
	}

	return up, nil
}

func extract(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	// Export files are small; no decompression-bomb guard needed beyond
	// the fixed file list.
	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	return out.Close()
}

// table reads a CSV file into a header-index map plus rows.
type table struct {
	idx  map[string]int
	rows [][]string
}

func (t *table) get(row []string, col string) string {
	i, ok := t.idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func readTable(path string, required ...string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", filepath.Base(path))
	}

	t := &table{idx: make(map[string]int, len(records[0])), rows: records[1:]}
	for i, h := range records[0] {
		t.idx[strings.TrimSpace(h)] = i
	}
	for _, col := range required {
		if _, ok := t.idx[col]; !ok {
			return nil, fmt.Errorf("%s: missing required column %q", filepath.Base(path), col)
		}
	}
	return t, nil
}

// NormalizeYear turns a year cell into an integer-valued string. The export
// occasionally carries float-formatted years ("1999.0"). Returns false for
// non-numeric values; such rows are discarded.
func NormalizeYear(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return strconv.Itoa(int(v)), true
}

func (ig *Ingestor) readList(path string) ([]ListEntry, error) {
	t, err := readTable(path, "Name", "Year", "Date")
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(t.rows))
	dropped := 0
	for _, row := range t.rows {
		year, ok := NormalizeYear(t.get(row, "Year"))
		if !ok {
			dropped++
			continue
		}
		entries = append(entries, ListEntry{
			Name: t.get(row, "Name"),
			Year: year,
			Date: t.get(row, "Date"),
		})
	}
	if dropped > 0 {
		ig.logger.Debug("dropped rows with non-numeric years",
			slog.String("file", filepath.Base(path)), slog.Int("count", dropped))
	}
	return entries, nil
}

func (ig *Ingestor) readRatings(path string) ([]RatingEntry, error) {
	t, err := readTable(path, "Name", "Year", "Date", "Rating")
	if err != nil {
		return nil, err
	}

	entries := make([]RatingEntry, 0, len(t.rows))
	for _, row := range t.rows {
		year, ok := NormalizeYear(t.get(row, "Year"))
		if !ok {
			continue
		}
		rating, err := strconv.ParseFloat(t.get(row, "Rating"), 64)
		if err != nil {
			continue
		}
		entries = append(entries, RatingEntry{
			Name:   t.get(row, "Name"),
			Year:   year,
			Date:   t.get(row, "Date"),
			Rating: rating,
		})
	}
	return entries, nil
}

func (ig *Ingestor) readReviews(path string) ([]Review, error) {
	t, err := readTable(path, "Name", "Date", "Review")
	if err != nil {
		return nil, err
	}

	reviews := make([]Review, 0, len(t.rows))
	for _, row := range t.rows {
		reviews = append(reviews, Review{
			Name: t.get(row, "Name"),
			Year: t.get(row, "Year"),
			Date: t.get(row, "Date"),
			Text: t.get(row, "Review"),
		})
	}
	return reviews, nil
}

func (ig *Ingestor) readComments(path string) ([]Comment, error) {
	t, err := readTable(path, "Date", "Comment")
	if err != nil {
		return nil, err
	}

	comments := make([]Comment, 0, len(t.rows))
	for _, row := range t.rows {
		comments = append(comments, Comment{
			Date: t.get(row, "Date"),
			Text: t.get(row, "Comment"),
		})
	}
	return comments, nil
}

func (ig *Ingestor) readProfile(path string) (Profile, error) {
	t, err := readTable(path, "Username", "Date Joined")
	if err != nil {
		return Profile{}, err
	}
	if len(t.rows) == 0 {
		return Profile{}, fmt.Errorf("profile.csv: no profile row")
	}
	row := t.rows[0]
	return Profile{
		Username:   t.get(row, "Username"),
		DateJoined: t.get(row, "Date Joined"),
	}, nil
}

// Years lists the selectable analysis years: "Alltime" followed by every
// calendar year from the profile's join date through now, newest first.
func Years(p Profile, now time.Time) ([]string, error) {
	joined, err := ParseDate(p.DateJoined)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Date Joined %q: %w", p.DateJoined, err)
	}

	years := []string{"Alltime"}
	for y := now.Year(); y >= joined.Year(); y-- {
		years = append(years, strconv.Itoa(y))
	}
	return years, nil
}

// dateLayouts are the formats seen in exports, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02 Jan 2006",
}

// ParseDate leniently parses an export date cell.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %q", s)
}
