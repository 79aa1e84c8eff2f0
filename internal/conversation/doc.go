// Package conversation serves the live side of guest conversations.
//
// # Live streams
//
// EventBroadcaster fans stored ChannelMessages out to websocket viewers:
//
//   - ConversationKey(id): the guest's web chat for one conversation
//   - HotelKey(id): the staff dashboard, every conversation of a hotel
//
// Pending drafts of supervised conversations only go to the hotel stream.
//
// # Staff review
//
// When a guest is in supervised mode the dialogue reply is stored as a pending
// draft instead of being sent. Service lets staff:
//
//   - ListPending(ctx, hotelID, limit)
//   - Approve(ctx, messageID, approvedResponse, respondedBy): send the draft,
//     or an edited text, through the delivery adapter
//   - Reject(ctx, messageID, respondedBy): discard the draft
//   - SetGuestMode(ctx, hotelID, guestID, mode)
package conversation
