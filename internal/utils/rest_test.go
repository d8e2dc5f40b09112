package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{
			name:    "validation failure",
			code:    http.StatusBadRequest,
			message: "transaction_id: must not be empty",
		},
		{
			name:    "missing record",
			code:    http.StatusNotFound,
			message: "no audit records for transaction",
		},
		{
			name:    "rate limited",
			code:    http.StatusTooManyRequests,
			message: "rate limit exceeded",
		},
		{
			name:    "store unavailable",
			code:    http.StatusServiceUnavailable,
			message: "failed to store audit record",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			RespondWithError(w, tt.code, tt.message)

			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}

			contentType := w.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", contentType)
			}

			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Error != tt.message {
				t.Errorf("RespondWithError() message = %s, want %s", response.Error, tt.message)
			}
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	t.Run("record payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		payload := struct {
			ID            int64  `json:"id"`
			TransactionID string `json:"transaction_id"`
			Status        string `json:"status"`
		}{
			ID:            42,
			TransactionID: "txn-20260826-001",
			Status:        "SUCCESS",
		}

		err := RespondWithJSON(w, http.StatusCreated, payload)
		if err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if w.Code != http.StatusCreated {
			t.Errorf("RespondWithJSON() status = %d, want %d", w.Code, http.StatusCreated)
		}
		if contentType := w.Header().Get("Content-Type"); contentType != "application/json" {
			t.Errorf("RespondWithJSON() Content-Type = %s, want application/json", contentType)
		}

		var response struct {
			ID            int64  `json:"id"`
			TransactionID string `json:"transaction_id"`
		}
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.ID != payload.ID {
			t.Errorf("RespondWithJSON() id = %d, want %d", response.ID, payload.ID)
		}
		if response.TransactionID != payload.TransactionID {
			t.Errorf("RespondWithJSON() transaction_id = %s, want %s", response.TransactionID, payload.TransactionID)
		}
	})

	t.Run("map payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		payload := map[string]any{
			"status":      "queued",
			"queue_depth": 3,
		}

		if err := RespondWithJSON(w, http.StatusAccepted, payload); err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if w.Code != http.StatusAccepted {
			t.Errorf("RespondWithJSON() status = %d, want %d", w.Code, http.StatusAccepted)
		}

		var response map[string]any
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response["status"] != "queued" {
			t.Errorf("RespondWithJSON() status = %v, want queued", response["status"])
		}
		if int(response["queue_depth"].(float64)) != 3 {
			t.Errorf("RespondWithJSON() queue_depth = %v, want 3", response["queue_depth"])
		}
	})

	t.Run("empty slice stays a JSON array", func(t *testing.T) {
		w := httptest.NewRecorder()

		if err := RespondWithJSON(w, http.StatusOK, []string{}); err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if body := w.Body.String(); body != "[]\n" {
			t.Errorf("RespondWithJSON() body = %q, want %q", body, "[]\n")
		}
	})

	t.Run("nil payload", func(t *testing.T) {
		w := httptest.NewRecorder()

		if err := RespondWithJSON(w, http.StatusOK, nil); err != nil {
			t.Errorf("RespondWithJSON() error = %v, want nil", err)
		}
		if body := w.Body.String(); body != "null\n" {
			t.Logf("RespondWithJSON() with nil payload body = %q", body)
		}
	})
}
