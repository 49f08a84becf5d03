package export

import "testing"

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{1: "A", 10: "J", 26: "Z", 27: "AA", 52: "AZ", 53: "BA"}
	for n, want := range cases {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestHeadersDrifted(t *testing.T) {
	good := make([]interface{}, len(sheetHeaders))
	for i, h := range sheetHeaders {
		good[i] = h
	}
	if headersDrifted([][]interface{}{good}) {
		t.Error("canonical headers reported as drifted")
	}
	if !headersDrifted(nil) {
		t.Error("empty sheet must report drift")
	}
	if !headersDrifted([][]interface{}{{"Timestamp", "Wrong"}}) {
		t.Error("short header row must report drift")
	}
}

func TestFindRowIndexMatchesNormalizedKey(t *testing.T) {
	rows := [][]interface{}{
		make([]interface{}, len(sheetHeaders)), // header
		{"t", "A", "a@example.com", "012345678901", "0912345678", "2000-01-01"},
		{"t", "B", "B@Example.COM", float64(123456789012), "0912345679", "2000-01-02"},
		{"t", "C", "", ""},
	}

	if got := findRowIndex(rows, "a@example.com", "012345678901"); got != 1 {
		t.Errorf("expected row 1, got %d", got)
	}
	// Case-insensitive email match, numeric national ID cell.
	if got := findRowIndex(rows, "b@example.com", "123456789012"); got != 2 {
		t.Errorf("expected row 2, got %d", got)
	}
	// Blank keys never match each other.
	if got := findRowIndex(rows, "", ""); got != -1 {
		t.Errorf("expected -1 for blank key, got %d", got)
	}
	if got := findRowIndex(rows, "missing@example.com", "000000000000"); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}
