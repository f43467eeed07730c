package broadcast_test

import (
	"testing"

	"github.com/mossfeld/voicecast/internal/broadcast"
)

// Existing consumers parse these messages byte-for-byte, so the tests
// pin the exact serialization.
func TestEncodeChunkExactBytes(t *testing.T) {
	got, err := broadcast.EncodeChunk([]byte("abc"))
	if err != nil {
		t.Fatalf("EncodeChunk returned error: %v", err)
	}

	want := `{"event":"chunk","media":{"payload":"YWJj","is_sync":true}}`
	if string(got) != want {
		t.Errorf("EncodeChunk = %s, want %s", got, want)
	}
}

func TestEncodeChunkEmptyPayload(t *testing.T) {
	got, err := broadcast.EncodeChunk(nil)
	if err != nil {
		t.Fatalf("EncodeChunk returned error: %v", err)
	}

	want := `{"event":"chunk","media":{"payload":"","is_sync":true}}`
	if string(got) != want {
		t.Errorf("EncodeChunk = %s, want %s", got, want)
	}
}

func TestEncodeCloseExactBytes(t *testing.T) {
	got, err := broadcast.EncodeClose()
	if err != nil {
		t.Fatalf("EncodeClose returned error: %v", err)
	}

	want := `{"event":"close"}`
	if string(got) != want {
		t.Errorf("EncodeClose = %s, want %s", got, want)
	}
}
