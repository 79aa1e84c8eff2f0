// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, the query fallback and the hotel gate

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantErr   string
	}{
		{"", "", "missing authorization header"},
		{"Basic abc", "", "invalid authorization header format"},
		{"Bearer ", "", "empty token"},
		{"Bearer abc.def.ghi", "abc.def.ghi", ""},
	}

	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		if token != tt.wantToken || errMsg != tt.wantErr {
			t.Errorf("extractBearerToken(%q) = (%q, %q), want (%q, %q)", tt.header, token, errMsg, tt.wantToken, tt.wantErr)
		}
	}
}

func serveAuth(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *StaffContext) {
	t.Helper()
	verifier := newTestVerifier(t)

	var got *StaffContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(verifier)(handler).ServeHTTP(rec, req)
	return rec, got
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	token, _ := newTestVerifier(t).Generate(StaffContext{StaffID: "maria", HotelID: "hotel999"}, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/api/hotels/hotel999/pending", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, staff := serveAuth(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if staff == nil || staff.StaffID != "maria" || staff.HotelID != "hotel999" {
		t.Errorf("staff = %+v", staff)
	}
}

func TestHTTPAuthMiddleware_QueryToken(t *testing.T) {
	token, _ := newTestVerifier(t).Generate(StaffContext{StaffID: "maria", HotelID: "hotel999"}, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/ws/hotels/hotel999?access_token="+token, nil)
	rec, staff := serveAuth(t, req)

	if rec.Code != http.StatusOK || staff == nil {
		t.Errorf("status = %d, staff = %+v", rec.Code, staff)
	}
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"bad token", "Bearer not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec, staff := serveAuth(t, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if staff != nil {
				t.Error("handler should not have been called")
			}
		})
	}
}

func TestRequireHotel(t *testing.T) {
	fromHeader := func(r *http.Request) string { return r.Header.Get("X-Hotel") }
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	gate := RequireHotel(fromHeader)(ok)

	tests := []struct {
		name  string
		staff *StaffContext
		hotel string
		want  int
	}{
		{"no staff", nil, "hotel999", http.StatusUnauthorized},
		{"same hotel", &StaffContext{StaffID: "maria", HotelID: "hotel999"}, "hotel999", http.StatusOK},
		{"other hotel", &StaffContext{StaffID: "maria", HotelID: "hotel999"}, "hotel1", http.StatusForbidden},
		{"admin", &StaffContext{StaffID: "ops", Role: RoleAdmin}, "hotel1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Hotel", tt.hotel)
			if tt.staff != nil {
				req = req.WithContext(WithStaff(req.Context(), tt.staff))
			}
			rec := httptest.NewRecorder()
			gate.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
