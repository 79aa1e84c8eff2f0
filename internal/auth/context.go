// ABOUTME: Staff identity carried through request handlers
// ABOUTME: Provides WithStaff/FromContext for propagating it via context

package auth

import (
	"context"
)

// Staff roles
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// StaffContext is the authenticated staff member behind a request
type StaffContext struct {
	StaffID string
	HotelID string
	Role    string
}

// IsAdmin returns true for gateway administrators
func (s *StaffContext) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// CanAccess reports whether the staff member may act for the hotel
func (s *StaffContext) CanAccess(hotelID string) bool {
	return s.IsAdmin() || (hotelID != "" && s.HotelID == hotelID)
}

type staffContextKey struct{}

// WithStaff returns a new context with the StaffContext attached.
func WithStaff(ctx context.Context, staff *StaffContext) context.Context {
	return context.WithValue(ctx, staffContextKey{}, staff)
}

// FromContext retrieves the StaffContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *StaffContext {
	staff, _ := ctx.Value(staffContextKey{}).(*StaffContext)
	return staff
}
