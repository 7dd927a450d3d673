// Package link implements the pairing channel between a phone and its watch.
//
// # Overview
//
// A Session wraps one device's end of the channel. It tracks three
// independent pieces of state:
//
//   - activation: NotActivated -> Activating -> Activated, with the side
//     transitions Activated -> Inactive and Activated -> Deactivated. A
//     deactivated session immediately tries to activate again.
//   - reachability: whether the peer can receive a message right now.
//   - peer installed: whether the counterpart app has ever registered on the
//     pairing.
//
// Messages are string maps delivered in one of two modes. Correlated
// deliveries wait for a reply payload; uncorrelated deliveries are
// fire-and-forget and at-most-once. Both share the same envelope and are
// handed to the same Handler on the receiving side.
//
// # Redis Schema
//
// The channel is carried by Redis Pub/Sub. All keys and channels are
// namespaced by pairing name so several pairings can share one server.
//
//	Inbox channel:  cardlink:{pairing}:{role}:inbox
//	Reply channel:  cardlink:{pairing}:reply:{correlation_id}
//	Presence key:   cardlink:{pairing}:presence:{role}  (expires after the presence TTL)
//	Installed set:  cardlink:{pairing}:installed
//
// Publishing to an inbox nobody is subscribed to reports zero receivers,
// which the sender surfaces as a delivery failure. The transport never
// retries; retry policy belongs to the caller.
package link
