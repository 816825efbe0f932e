/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package clocktower keeps the authoritative state of hosted Clocktower
// sessions: who is seated, which roles are in the pool and assigned, the
// current phase and day, and the host's event log.
//
// The host of a session is whichever connection holds authority over it.
// Every operation except Join is host only. When the host's connection
// drops, authority passes to the first still-connected participant in join
// order.
//
// After every change, the Store pushes each connected participant their own
// View of the session. Views differ only in the log, which is shown to the
// host alone.
//
// Roles are bookkeeping only. Nothing here enforces night actions or win
// conditions.
package clocktower
