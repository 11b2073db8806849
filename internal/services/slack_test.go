package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/nowplaying/internal/shared"
)

type profileBody struct {
	Profile struct {
		StatusText  string `json:"status_text"`
		StatusEmoji string `json:"status_emoji"`
	} `json:"profile"`
}

func TestSlackPublisher(t *testing.T) {
	ctx := context.Background()

	newPublisher := func(t *testing.T, handler http.HandlerFunc, retryMax int) (*SlackPublisher, *bytes.Buffer) {
		t.Helper()
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)

		var logs bytes.Buffer
		pub := NewSlackPublisher(shared.SlackConfig{Token: "xoxp-test", APIURL: server.URL + "/api", RetryMax: retryMax}, shared.NewLogger(&logs), nil)
		pub.client.RetryWaitMin = time.Millisecond
		pub.client.RetryWaitMax = 5 * time.Millisecond
		return pub, &logs
	}

	t.Run("Publish", func(t *testing.T) {
		var got profileBody
		pub, _ := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST method, got %s", r.Method)
			}
			if r.URL.Path != "/api/users.profile.set" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer xoxp-test" {
				t.Errorf("expected bearer token, got %q", auth)
			}
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
			}
			json.NewDecoder(r.Body).Decode(&got)
			w.Write([]byte(`{"ok":true}`))
		}, 0)

		if err := pub.Publish(ctx, "Artist - Song", ":musical_note:"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Profile.StatusText != "Artist - Song" || got.Profile.StatusEmoji != ":musical_note:" {
			t.Errorf("unexpected profile %+v", got.Profile)
		}
	})

	t.Run("Clear Sends Empty Fields", func(t *testing.T) {
		var raw map[string]map[string]string
		pub, _ := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&raw)
			w.Write([]byte(`{"ok":true}`))
		}, 0)

		if err := pub.Clear(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		profile, ok := raw["profile"]
		if !ok {
			t.Fatal("expected profile object")
		}
		if text, ok := profile["status_text"]; !ok || text != "" {
			t.Errorf("expected empty status_text field, got %q (present %v)", text, ok)
		}
		if emoji, ok := profile["status_emoji"]; !ok || emoji != "" {
			t.Errorf("expected empty status_emoji field, got %q (present %v)", emoji, ok)
		}
	})

	t.Run("Not OK Is Logged", func(t *testing.T) {
		pub, logs := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
		}, 0)

		err := pub.Publish(ctx, "Artist - Song", ":musical_note:")
		if !errors.Is(err, shared.ErrPresenceRejected) {
			t.Errorf("expected ErrPresenceRejected, got %v", err)
		}
		if !strings.Contains(logs.String(), "invalid_auth") {
			t.Errorf("expected provider error in logs, got %q", logs.String())
		}
	})

	t.Run("Retries Server Errors", func(t *testing.T) {
		var calls atomic.Int32
		pub, _ := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}, 2)

		if err := pub.Publish(ctx, "a", "b"); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 attempts, got %d", calls.Load())
		}
	})

	t.Run("Gives Up", func(t *testing.T) {
		pub, _ := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, 1)

		if err := pub.Publish(ctx, "a", "b"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Non JSON Response", func(t *testing.T) {
		pub, _ := newPublisher(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("upstream connect error"))
		}, 0)

		if err := pub.Publish(ctx, "a", "b"); !errors.Is(err, shared.ErrPresenceRejected) {
			t.Errorf("expected ErrPresenceRejected, got %v", err)
		}
	})
}
