package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2019-03-14" {
			t.Errorf("path = %q, want /2019-03-14", r.URL.Path)
		}
		if got := r.URL.Query().Get("base"); got != "USD" {
			t.Errorf("base = %q, want USD", got)
		}
		if got := r.URL.Query().Get("symbols"); got != "EUR" {
			t.Errorf("symbols = %q, want EUR", got)
		}
		w.Write([]byte(`{"base":"USD","date":"2019-03-14","rates":{"EUR":0.8863}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL(srv.URL, "USD")
	date := time.Date(2019, time.March, 14, 0, 0, 0, 0, time.UTC)
	rate, err := c.Rate(context.Background(), "EUR", date)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if rate.String() != "0.8863" {
		t.Errorf("rate = %s, want 0.8863", rate)
	}
}

func TestRateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "no rates before 1999", http.StatusBadRequest)
			},
		},
		{
			name: "currency missing from response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"rates":{"GBP":0.76}}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
	}
	date := time.Date(2019, time.March, 14, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewWithBaseURL(srv.URL, "USD")
			if _, err := c.Rate(context.Background(), "EUR", date); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
