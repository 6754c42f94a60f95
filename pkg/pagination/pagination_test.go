package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: uuid.New()}

	decoded, err := Decode(cursor.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded == nil || !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("expected %+v back, got %+v", cursor, decoded)
	}
}

func TestDecodeEmptyTokenMeansFirstPage(t *testing.T) {
	cursor, err := Decode("  ")
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if cursor != nil {
		t.Fatalf("expected nil cursor, got %+v", cursor)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, token := range []string{"not-base64!", "bm8tc2VwYXJhdG9y", "MjAyNHxub3QtYS11dWlk"} {
		if _, err := Decode(token); err == nil {
			t.Fatalf("expected error for token %q", token)
		}
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{10, 10},
		{MaxLimit + 50, MaxLimit},
	}
	for _, tc := range cases {
		if got := Clamp(tc.in); got != tc.want {
			t.Fatalf("Clamp(%d): expected %d, got %d", tc.in, tc.want, got)
		}
	}
	if got := FetchSize(10); got != 11 {
		t.Fatalf("FetchSize(10): expected 11, got %d", got)
	}
}
