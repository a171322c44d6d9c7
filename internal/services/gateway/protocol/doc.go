// Package protocol implements the gateway's per-connection message state
// machine.
//
// Dispatch is a pure function of the session state and one inbound frame. It
// returns the next session state plus a list of effects (replies, broadcasts,
// presence and room updates, history records) that the connection driver in
// the app package executes in order. Nothing here touches sockets, locks or
// storage, so every branch is covered with plain table tests.
package protocol
