/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrNotHost             = errors.New("only the host can perform this action")
	ErrNoPlayers           = errors.New("no players to assign roles to")
	ErrParticipantNotFound = errors.New("participant not found in session")
	ErrEmptyEntry          = errors.New("log entry is empty")
)

var errCodeSpaceExhausted = errors.New("unable to allocate an unused session code")
