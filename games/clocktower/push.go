/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

// Pusher delivers a projection to one connection. Implementations must not
// block: the store calls Push while holding the session lock.
type Pusher interface {
	Push(connID string, view View)
}

// PusherFunc adapts a function to the Pusher interface.
type PusherFunc func(connID string, view View)

func (f PusherFunc) Push(connID string, view View) {
	f(connID, view)
}

// Discard drops every projection.
var Discard Pusher = PusherFunc(func(string, View) {})
