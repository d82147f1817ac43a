// Package room holds chat rooms, their allow-lists and messages, and the
// access policy that decides who may read, write or manage a room.
//
// Decide is a pure function of the room, the actor and the action. Callers
// load the room, resolve the actor, and pass both in; the policy never
// touches storage.
//
// # Thread Safety
//
// The SQLite repositories are safe for concurrent use.
package room
