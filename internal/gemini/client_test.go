package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewWithBaseURL("test-key", "gemini-2.5-flash", server.URL)
	var slept []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return client, &slept
}

func textResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":"` + text + `"}]}}]}`
}

func TestGenerateSuccess(t *testing.T) {
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key, query=%q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(textResponse("hello")))
	})

	text, err := client.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("text=%q, want hello", text)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept %v on success", *slept)
	}
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(textResponse("third time lucky")))
	})

	text, err := client.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if text != "third time lucky" {
		t.Fatalf("text=%q", text)
	}
	if attempts != 3 {
		t.Fatalf("attempts=%d, want 3", attempts)
	}

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept=%v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("slept=%v, want %v", *slept, want)
		}
	}
}

func TestGenerateRateLimitExhausted(t *testing.T) {
	attempts := 0
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v, want ErrRateLimited", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts=%d, want 3", attempts)
	}
	// No sleep after the final attempt.
	if len(*slept) != 2 {
		t.Fatalf("slept=%v, want two backoffs", *slept)
	}
}

func TestGenerateOtherErrorNoRetry(t *testing.T) {
	attempts := 0
	client, slept := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	})

	_, err := client.Generate(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v must not be ErrRateLimited", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts=%d, want no retry", attempts)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept=%v, want none", *slept)
	}
}

func TestChallengeAndSentimentPrompts(t *testing.T) {
	var prompts []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		prompts = append(prompts, req.Contents[0].Parts[0].Text)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(textResponse("ok")))
	})

	if _, err := client.Challenge(context.Background(), "Commits=5, Issues=1, PRs=0"); err != nil {
		t.Fatalf("Challenge error: %v", err)
	}
	if _, err := client.Sentiment(context.Background(), "great work everyone"); err != nil {
		t.Fatalf("Sentiment error: %v", err)
	}

	if len(prompts) != 2 {
		t.Fatalf("prompts=%d, want 2", len(prompts))
	}
	if !strings.Contains(prompts[0], "Commits=5, Issues=1, PRs=0") {
		t.Fatalf("challenge prompt missing activity: %q", prompts[0])
	}
	if !strings.Contains(prompts[1], "great work everyone") {
		t.Fatalf("sentiment prompt missing text: %q", prompts[1])
	}
}
