// Package auth authenticates hotel staff on the gateway's HTTP surface.
//
// # Tokens
//
// Staff authenticate with HS256 JWTs signed with auth.jwt_secret, which must
// be at least MinSecretLength bytes. Claims:
//
//   - sub: staff member id
//   - hotelId: the hotel the token acts for
//   - role: "staff" (default) or "admin" (any hotel, hotelId optional)
//   - exp/iat: standard expiry
//
// Tokens are minted with `begaia-gateway token`.
//
// # Middleware
//
//	HTTPAuthMiddleware(verifier)     // 401 without a valid token
//	RequireHotel(func(r) hotelID)    // 403 when the token's hotel differs
//
// The token is read from the Authorization header. WebSocket upgrades may pass
// it as the access_token query parameter instead.
//
// Guest-facing webhooks are not authenticated here.
package auth
