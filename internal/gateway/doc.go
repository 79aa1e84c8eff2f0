// Package gateway wires the begaia-gateway server together.
//
// # Overview
//
// New builds every component from a config.Config: the SQLite store, the
// idempotency guard backend (store, redis or memory), the hotel collaborators
// (remote HTTP clients or the built-in static rates and local booking), the
// dialogue engine, the delivery adapter with one transport per enabled
// channel, the ingestion service and the staff review service. Run serves HTTP
// and, when enabled, keeps the WhatsApp bridge connection alive until the
// context is canceled.
//
// # HTTP surface
//
// Channel webhooks. Malformed payloads get 400, everything else is
// acknowledged with {"ok": true, "deduped": bool} so providers stop retrying.
// The web webhook also returns a streamToken for the guest's conversation stream:
//
//   - POST /webhooks/web
//   - POST /webhooks/whatsapp
//   - POST /webhooks/email
//   - POST /webhooks/channel-manager
//
// Live streams over websockets. The first frame is {"type": "ready"}; each
// transcript message follows as {"type": "message", "message": {...}}:
//
//   - GET /ws/conversations/{conversationId}?access_token= - web messages of one conversation (stream token)
//   - GET /ws/hotels/{hotelId} - every message of a hotel, pending drafts included (staff token)
//
// Staff API, mounted only when auth.jwt_secret is set. Tokens are HS256 JWTs
// sent as a bearer header, or as ?access_token= for websockets:
//
//   - GET /api/hotels/{hotelId}/messages/pending
//   - GET /api/hotels/{hotelId}/conversations/{conversationId}/messages
//   - GET /api/hotels/{hotelId}/conversations/{conversationId}/state
//   - PUT /api/hotels/{hotelId}/guests/{guestId}/mode
//   - POST /api/messages/{messageId}/approve
//   - POST /api/messages/{messageId}/reject
//
// Health:
//
//   - GET /health - liveness
//   - GET /health/ready - channel readiness and WhatsApp wait metrics; 503 while the bridge is down
//
// # Shutdown
//
// Shutdown stops the HTTP server, closes the guard backend, the event
// publisher and the broadcaster, then the store. Errors are joined.
package gateway
