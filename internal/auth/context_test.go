// ABOUTME: Unit tests for staff context functions
// ABOUTME: Tests IsAdmin, CanAccess and context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestStaffContext_CanAccess(t *testing.T) {
	tests := []struct {
		name  string
		staff StaffContext
		hotel string
		want  bool
	}{
		{"own hotel", StaffContext{StaffID: "maria", HotelID: "hotel999"}, "hotel999", true},
		{"other hotel", StaffContext{StaffID: "maria", HotelID: "hotel999"}, "hotel1", false},
		{"empty hotel", StaffContext{StaffID: "maria"}, "", false},
		{"admin", StaffContext{StaffID: "ops", Role: RoleAdmin}, "hotel1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.staff.CanAccess(tt.hotel); got != tt.want {
				t.Errorf("CanAccess(%q) = %v, want %v", tt.hotel, got, tt.want)
			}
		})
	}
}

func TestWithStaff_FromContext(t *testing.T) {
	staff := &StaffContext{StaffID: "maria", HotelID: "hotel999", Role: RoleStaff}
	ctx := WithStaff(context.Background(), staff)

	if got := FromContext(ctx); got != staff {
		t.Errorf("FromContext() = %+v, want %+v", got, staff)
	}
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext(empty) = %+v, want nil", got)
	}
}
