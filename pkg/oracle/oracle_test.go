package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dtnitsch/challenge-miner/models"
)

func TestParseRecords_Valid(t *testing.T) {
	raw := []byte(`[
		{
			"challenge_statement": "Water scarcity affects rural areas",
			"confidence": 0.85,
			"sdg_goals": [6],
			"geography": "Eastern Province",
			"evidence_quotes": ["40% of wells run dry each summer"]
		}
	]`)

	records, err := ParseRecords(raw)
	if err != nil {
		t.Fatalf("ParseRecords() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	r := records[0]
	if r.ChallengeStatement != "Water scarcity affects rural areas" {
		t.Errorf("statement = %q", r.ChallengeStatement)
	}
	if r.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", r.Confidence)
	}
	if len(r.SDGGoals) != 1 || r.SDGGoals[0] != 6 {
		t.Errorf("sdg_goals = %v, want [6]", r.SDGGoals)
	}
}

func TestParseRecords_EmptyArray(t *testing.T) {
	records, err := ParseRecords([]byte(`[]`))
	if err != nil {
		t.Fatalf("ParseRecords([]) error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestParseRecords_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an array", `{"challenge_statement": "x", "confidence": 0.5}`},
		{"missing statement", `[{"confidence": 0.5}]`},
		{"missing confidence", `[{"challenge_statement": "x"}]`},
		{"empty statement", `[{"challenge_statement": "", "confidence": 0.5}]`},
		{"confidence out of range", `[{"challenge_statement": "x", "confidence": 1.5}]`},
		{"sdg goal out of range", `[{"challenge_statement": "x", "confidence": 0.5, "sdg_goals": [99]}]`},
		{"too many quotes", `[{"challenge_statement": "x", "confidence": 0.5, "evidence_quotes": ["a","b","c"]}]`},
		{"not json", `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecords([]byte(tt.raw))
			if !errors.Is(err, models.ErrSchemaViolation) {
				t.Errorf("ParseRecords() error = %v, want ErrSchemaViolation", err)
			}
		})
	}
}

func chatBody(content string) string {
	return `{"choices":[{"message":{"content":` + content + `}}]}`
}

func TestHTTPOracle_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		w.Write([]byte(chatBody(`"[{\"challenge_statement\": \"Water scarcity affects rural areas\", \"confidence\": 0.8}]"`)))
	}))
	defer srv.Close()

	o := NewHTTPOracle(models.OracleConfig{
		Endpoint: srv.URL, Model: "test-model", APIKey: "test-key",
	}, nil)

	records, err := o.Extract(context.Background(), Request{ChunkText: "some text", OrgName: "Org", SourceURL: "https://x", Lang: "en"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
}

func TestHTTPOracle_ExtractsArrayFromProse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatBody(`"Here you go:\n[{\"challenge_statement\": \"x\", \"confidence\": 0.6}]\nDone."`)))
	}))
	defer srv.Close()

	o := NewHTTPOracle(models.OracleConfig{Endpoint: srv.URL, Model: "m"}, nil)
	records, err := o.Extract(context.Background(), Request{ChunkText: "text"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestHTTPOracle_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	o := NewHTTPOracle(models.OracleConfig{Endpoint: srv.URL, Model: "m"}, nil)
	_, err := o.Extract(context.Background(), Request{ChunkText: "text"})
	if !errors.Is(err, models.ErrOracleUnavailable) {
		t.Errorf("Extract() error = %v, want ErrOracleUnavailable", err)
	}
}

func TestHTTPOracle_TransportFailureIsRetryable(t *testing.T) {
	o := NewHTTPOracle(models.OracleConfig{Endpoint: "http://127.0.0.1:1", Model: "m"}, nil)
	_, err := o.Extract(context.Background(), Request{ChunkText: "text"})
	if !errors.Is(err, models.ErrOracleUnavailable) {
		t.Errorf("Extract() error = %v, want ErrOracleUnavailable", err)
	}
}

func TestHTTPOracle_BadRequestNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	o := NewHTTPOracle(models.OracleConfig{Endpoint: srv.URL, Model: "m"}, nil)
	_, err := o.Extract(context.Background(), Request{ChunkText: "text"})
	if err == nil {
		t.Fatal("Extract() expected error")
	}
	if errors.Is(err, models.ErrOracleUnavailable) {
		t.Error("401 should not be retryable")
	}
}

func TestTruncateChunk_KeepsRunesWhole(t *testing.T) {
	// Three bytes per rune after a one-byte prefix, so the byte budget lands
	// mid-rune; a naive byte slice would leave invalid UTF-8.
	text := "a" + strings.Repeat("€", maxChunkBytes)

	got := truncateChunk(text, maxChunkBytes)
	if len(got) > maxChunkBytes {
		t.Fatalf("len = %d, want <= %d", len(got), maxChunkBytes)
	}
	if !utf8.ValidString(got) {
		t.Error("truncated chunk is not valid UTF-8")
	}
	if got != truncateChunk(text, maxChunkBytes) {
		t.Error("truncation is not deterministic")
	}

	short := "short chunk"
	if truncateChunk(short, maxChunkBytes) != short {
		t.Error("text under the budget must pass through unchanged")
	}
}
