package docker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestWaitForEventEncodesFilters(t *testing.T) {
	var filters map[string][]string

	client := newTestAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.Unmarshal([]byte(r.URL.Query().Get("filters")), &filters); err != nil {
			t.Errorf("Failed to decode filters parameter: %v", err)
		}

		io.WriteString(w, `{"status": "health_status: healthy", "id": "abc123"}`+"\n")
	}))

	event, err := client.waitForEvent(context.Background(), "abc123", []string{"die", "health_status"}, time.Second)
	if err != nil {
		t.Fatalf("waitForEvent() failed: %v", err)
	}

	if event.Status != "health_status: healthy" {
		t.Errorf("Expected event status 'health_status: healthy', got '%s'", event.Status)
	}

	if len(filters["container"]) != 1 || filters["container"][0] != "abc123" {
		t.Errorf("Expected container filter for abc123, got %v", filters["container"])
	}

	if len(filters["event"]) != 2 {
		t.Errorf("Expected two event type filters, got %v", filters["event"])
	}

	eventTypes := map[string]bool{}
	for _, eventType := range filters["event"] {
		eventTypes[eventType] = true
	}

	if !eventTypes["die"] || !eventTypes["health_status"] {
		t.Errorf("Expected die and health_status event filters, got %v", filters["event"])
	}
}

func TestWaitForEventReadsOnlyTheFirstEvent(t *testing.T) {
	client := newTestAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status": "health_status: unhealthy"}`+"\n")
		io.WriteString(w, `{"status": "die"}`+"\n")
	}))

	event, err := client.waitForEvent(context.Background(), "abc123", []string{"die", "health_status"}, time.Second)
	if err != nil {
		t.Fatalf("waitForEvent() failed: %v", err)
	}

	if event.Status != "health_status: unhealthy" {
		t.Errorf("Expected the first event only, got '%s'", event.Status)
	}
}

func TestWaitForEventHonoursCallerTimeout(t *testing.T) {
	client := newTestAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never push an event; the caller's timeout must end the wait.
		<-r.Context().Done()
	}))

	start := time.Now()

	_, err := client.waitForEvent(context.Background(), "abc123", []string{"die"}, 100*time.Millisecond)
	if err == nil {
		t.Fatal("Expected a timeout error")
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected the wait to end shortly after the timeout, took %v", elapsed)
	}
}

func TestWaitForEventDaemonError(t *testing.T) {
	client := newTestAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"message": "invalid filter"}`)
	}))

	_, err := client.waitForEvent(context.Background(), "abc123", []string{"die"}, time.Second)
	if err == nil {
		t.Fatal("Expected an error from a 400 response")
	}
}
