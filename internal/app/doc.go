// Package app provides the application service layer.
//
// Orchestrates the event pipeline: the Listener reads envelopes from the bus, the Notifier
// applies the visibility rule per viewer and hands frames to the broadcast hub.
// Depends on domain interfaces, not concrete implementations.
package app
