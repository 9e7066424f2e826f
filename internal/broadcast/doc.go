// Package broadcast implements the in-process fan-out hub for server-sent event streams.
//
// A Hub owns the registry of live Sessions behind a single mutex that is held only to
// copy or swap the registry, never across a send. Sends into a Session's bounded channel
// never block: a full channel fails the send and marks the Session, and the Monitor's next
// prune cycle removes it. Notify calls are serialized, so one Session sees frames in the
// order Notify was called.
package broadcast
