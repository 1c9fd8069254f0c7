package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestGetStatusColor(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		expected   string
	}{
		{"200 OK - Green", http.StatusOK, "\033[32m"},
		{"204 No Content - Green", http.StatusNoContent, "\033[32m"},
		{"301 Redirect - Cyan", http.StatusMovedPermanently, "\033[36m"},
		{"304 Not Modified - Cyan", http.StatusNotModified, "\033[36m"},
		{"401 Unauthorized - Yellow", http.StatusUnauthorized, "\033[33m"},
		{"404 Not Found - Yellow", http.StatusNotFound, "\033[33m"},
		{"429 Too Many Requests - Yellow", http.StatusTooManyRequests, "\033[33m"},
		{"500 Server Error - Red", http.StatusInternalServerError, "\033[31m"},
		{"503 Service Unavailable - Red", http.StatusServiceUnavailable, "\033[31m"},
		{"199 below 2xx", 199, "\033[0m"},
		{"100 Continue", http.StatusContinue, "\033[0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getStatusColor(tt.statusCode); got != tt.expected {
				t.Errorf("Expected color code %q for status %d, got %q", tt.expected, tt.statusCode, got)
			}
		})
	}
}

func TestResponseRecorder(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		rec := NewResponseRecorder(httptest.NewRecorder())
		if rec.StatusCode != http.StatusOK {
			t.Errorf("Expected default status code %d, got %d", http.StatusOK, rec.StatusCode)
		}
		if rec.BodySize != 0 {
			t.Errorf("Expected initial body size 0, got %d", rec.BodySize)
		}
	})

	t.Run("WriteHeader passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		rec := NewResponseRecorder(w)

		rec.WriteHeader(http.StatusNotFound)

		if rec.StatusCode != http.StatusNotFound || w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 on both recorders, got %d/%d", rec.StatusCode, w.Code)
		}
	})

	t.Run("Body size accumulates", func(t *testing.T) {
		rec := NewResponseRecorder(httptest.NewRecorder())
		for _, chunk := range []string{"Hello", ", ", "World", "!"} {
			if _, err := rec.Write([]byte(chunk)); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		}
		if rec.BodySize != len("Hello, World!") {
			t.Errorf("Expected body size %d, got %d", len("Hello, World!"), rec.BodySize)
		}
		if rec.StatusCode != http.StatusOK {
			t.Errorf("Expected implicit 200, got %d", rec.StatusCode)
		}
	})
}

func TestLoggingMiddleware_PassesResponseThrough(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		statusCode int
	}{
		{"GET success", "GET", http.StatusOK},
		{"PUT no content", "PUT", http.StatusNoContent},
		{"Not found", "GET", http.StatusNotFound},
		{"Too many requests", "GET", http.StatusTooManyRequests},
		{"Server error", "POST", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte("body"))
			}))
			req := httptest.NewRequest(tt.method, "/lyrics", nil)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.statusCode {
				t.Errorf("Expected status code %d, got %d", tt.statusCode, rec.Code)
			}
			if tt.statusCode != http.StatusNoContent && rec.Body.String() != "body" {
				t.Errorf("Expected body 'body', got %q", rec.Body.String())
			}
		})
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	t.Run("Generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		header := rec.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(header); err != nil {
			t.Fatalf("Expected a UUID request ID, got %q", header)
		}
		if seen != header {
			t.Errorf("Expected handler to see %q, got %q", header, seen)
		}
	})

	t.Run("Propagated when supplied", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Header().Get(RequestIDHeader) != "abc-123" || seen != "abc-123" {
			t.Errorf("Expected supplied ID to be kept, got header %q and context %q",
				rec.Header().Get(RequestIDHeader), seen)
		}
	})
}
