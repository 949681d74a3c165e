package firefly

import (
	"fmt"
	"reflect"
	"testing"
)

func TestDuplicateTransactionIDs(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantIDs []string
		wantOK  bool
	}{
		{
			name: "single duplicate",
			err: &APIError{StatusCode: 422, Message: "Invalid", Errors: map[string][]string{
				"transactions.0.description": {"Duplicate of transaction #123."},
			}},
			wantIDs: []string{"123"},
			wantOK:  true,
		},
		{
			name: "every split line a duplicate",
			err: &APIError{StatusCode: 422, Message: "Invalid", Errors: map[string][]string{
				"transactions.0.description": {"Duplicate of transaction #123."},
				"transactions.1.description": {"Duplicate of transaction #124."},
			}},
			wantIDs: []string{"123", "124"},
			wantOK:  true,
		},
		{
			name: "mixed with a real validation error",
			err: &APIError{StatusCode: 422, Message: "Invalid", Errors: map[string][]string{
				"transactions.0.description": {"Duplicate of transaction #123."},
				"transactions.1.amount":      {"Amount is required."},
			}},
			wantOK: false,
		},
		{
			name: "duplicate message on the wrong field",
			err: &APIError{StatusCode: 422, Message: "Invalid", Errors: map[string][]string{
				"transactions.0.amount": {"Duplicate of transaction #123."},
			}},
			wantOK: false,
		},
		{
			name:   "no validation payload",
			err:    &APIError{StatusCode: 500, Message: "boom"},
			wantOK: false,
		},
		{
			name:   "not an API error",
			err:    fmt.Errorf("connection refused"),
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Errors usually arrive wrapped by the client.
			ids, ok := DuplicateTransactionIDs(fmt.Errorf("firefly: POST transactions: %w", tt.err))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			got := make(map[string]bool)
			for _, id := range ids {
				got[id] = true
			}
			want := make(map[string]bool)
			for _, id := range tt.wantIDs {
				want[id] = true
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestIsServerError(t *testing.T) {
	if !IsServerError(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 500})) {
		t.Error("500 not detected")
	}
	if IsServerError(&APIError{StatusCode: 422}) {
		t.Error("422 misdetected as server error")
	}
	if IsServerError(fmt.Errorf("plain")) {
		t.Error("plain error misdetected")
	}
}
