// ABOUTME: Tests for the REST client against httptest backends.
// ABOUTME: Covers snapshot decoding, id resolution 404 handling, control-action errors, and error translation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

func TestGetSessionDecodesSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sessions/sess-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SessionDetail{
			Session: timeline.Session{SessionID: "sess-1", Status: timeline.SessionInProgress},
			Stages: []timeline.StageExecution{
				{ExecutionID: "ex-1", StageIndex: 1, Status: timeline.StageActive},
			},
			Interactions: []timeline.Interaction{
				{EventID: "ev-1", Type: timeline.InteractionLLM, TimestampUS: 100},
			},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	got, err := c.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Session.Status != timeline.SessionInProgress {
		t.Errorf("status = %q", got.Session.Status)
	}
	if len(got.Stages) != 1 || got.Stages[0].ExecutionID != "ex-1" {
		t.Errorf("stages = %+v", got.Stages)
	}
	if len(got.Interactions) != 1 || got.Interactions[0].EventID != "ev-1" {
		t.Errorf("interactions = %+v", got.Interactions)
	}
}

func TestResolveSessionID(t *testing.T) {
	known := map[string]string{"alert-1": "sess-1"}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		alertID := r.URL.Path[len("/api/v1/session-id/"):]
		sessionID, ok := known[alertID]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"session not created yet"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"` + sessionID + `"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)

	got, err := c.ResolveSessionID(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("ResolveSessionID: %v", err)
	}
	if got != "sess-1" {
		t.Errorf("session id = %q", got)
	}

	_, err = c.ResolveSessionID(context.Background(), "alert-unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound match", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "session not created yet" {
		t.Errorf("err = %v, want APIError carrying backend detail", err)
	}
}

func TestCancelSessionConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"session already completed"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	err := c.CancelSession(context.Background(), "sess-1")
	if err == nil {
		t.Fatal("want error for 409")
	}
	if got := Translate(err); got != "The session is not in a state that allows this action." {
		t.Errorf("Translate = %q", got)
	}
}

func TestSubmitAndResubmitAlert(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/alerts":
			var sub AlertSubmission
			if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.AlertType == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"alert_id":"alert-new","status":"queued"}`))
		case "/api/v1/alerts/alert-new/resubmit":
			_, _ = w.Write([]byte(`{"alert_id":"alert-new-2","status":"queued"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL)

	resp, err := c.SubmitAlert(context.Background(), AlertSubmission{AlertType: "kubernetes"})
	if err != nil {
		t.Fatalf("SubmitAlert: %v", err)
	}
	if resp.AlertID != "alert-new" {
		t.Errorf("alert id = %q", resp.AlertID)
	}

	resp, err = c.ResubmitAlert(context.Background(), "alert-new")
	if err != nil {
		t.Fatalf("ResubmitAlert: %v", err)
	}
	if resp.AlertID != "alert-new-2" {
		t.Errorf("resubmitted alert id = %q", resp.AlertID)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{
			"not found",
			&APIError{StatusCode: 404, Message: "x"},
			"Not found. The session may not exist yet or was removed.",
		},
		{
			"unavailable",
			&APIError{StatusCode: 503, Message: "x"},
			"The backend is unavailable. Try again shortly.",
		},
		{
			"backend message passthrough",
			&APIError{StatusCode: 422, Message: "alert_type is required"},
			"alert_type is required",
		},
		{
			"transport error",
			errors.New("dial tcp: connection refused"),
			"Could not reach the backend: dial tcp: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.err); got != tt.want {
				t.Errorf("Translate = %q, want %q", got, tt.want)
			}
		})
	}
}
