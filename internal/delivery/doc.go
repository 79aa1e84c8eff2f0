// Package delivery sends dialogue replies to guests.
//
// An Adapter picks the Transport for a conversation's channel from a fixed
// table built at startup:
//
//   - web: pushes onto the conversation's live stream, no retry
//   - whatsapp: waits for the bridge to be ready (bounded timeout, then a
//     short backoff sequence) and fails with NotReadyError otherwise
//   - email: one SMTP send, plain text plus rendered HTML
//   - channelManager: relays a message.outbound.v1 event
//
// Whatever the transport outcome, the adapter writes the outbound
// ChannelMessage so the transcript stays complete. Failed sends are stored
// with status "failed" and the error text. Attachments are generated lazily;
// a generation or document-send failure is logged and the text still goes out.
package delivery
