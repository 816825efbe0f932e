/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import (
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusLobby      Status = "lobby"
	StatusInProgress Status = "in-progress"
)

type Phase string

const (
	PhaseSetup Phase = "setup"
	PhaseNight Phase = "night"
	PhaseDay   Phase = "day"
)

// LogEntry is one line of the host's event log.
type LogEntry struct {
	Timestamp time.Time `json:"ts"`
	Text      string    `json:"text"`
}

// Participant is one seat in a session, bound to a connection id.
// An empty Role means no role is assigned.
type Participant struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"name"`
	Alive        bool   `json:"alive"`
	Connected    bool   `json:"connected"`
	Role         string `json:"role,omitempty"`
}

// Session is one running game. All fields are guarded by mu; the store
// serializes every mutation through it.
type Session struct {
	mu sync.Mutex

	code       string
	createdAt  time.Time
	lastActive time.Time

	hostConnID string
	hostName   string

	status Status
	phase  Phase
	day    int

	selectedRoles []string
	roleInfo      map[string]RoleInfo
	participants  []*Participant
	log           []LogEntry
}

func newSession(code, hostConnID, hostName string, roles []string, info map[string]RoleInfo, now time.Time) *Session {
	return &Session{
		code:          code,
		createdAt:     now,
		lastActive:    now,
		hostConnID:    hostConnID,
		hostName:      hostName,
		status:        StatusLobby,
		phase:         PhaseSetup,
		selectedRoles: roles,
		roleInfo:      maps.Clone(info),
		log:           []LogEntry{{Timestamp: now, Text: hostName + " hosted the game."}},
	}
}

// Code returns the session's immutable join code.
func (sess *Session) Code() string {
	return sess.code
}

// LastActive reports when the session was last mutated.
func (sess *Session) LastActive() time.Time {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.lastActive
}

func (sess *Session) appendLogLocked(now time.Time, format string, args ...any) {
	sess.log = append(sess.log, LogEntry{Timestamp: now, Text: fmt.Sprintf(format, args...)})
}

func (sess *Session) participantLocked(id string) *Participant {
	for _, p := range sess.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (sess *Session) participantByConnLocked(connID string) *Participant {
	for _, p := range sess.participants {
		if p.ConnectionID == connID {
			return p
		}
	}
	return nil
}

// joinLocked adds connID to the roster, or refreshes the existing entry for
// it. An empty name becomes "Player N", N being one past the roster size,
// for returning participants too.
func (sess *Session) joinLocked(connID, name string, newID IDGenerator) (*Participant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Player %d", len(sess.participants)+1)
	}

	if p := sess.participantByConnLocked(connID); p != nil {
		p.Connected = true
		p.DisplayName = name
		return p, nil
	}

	id, err := sess.unusedParticipantIDLocked(newID)
	if err != nil {
		return nil, err
	}

	p := &Participant{
		ID:           id,
		ConnectionID: connID,
		DisplayName:  name,
		Alive:        true,
		Connected:    true,
	}
	sess.participants = append(sess.participants, p)

	return p, nil
}

func (sess *Session) unusedParticipantIDLocked(newID IDGenerator) (string, error) {
	for range maxIDAttempts {
		id, err := newID(ParticipantIDLength)
		if err != nil {
			return "", err
		}
		if sess.participantLocked(id) == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("session %s: unable to allocate participant id", sess.code)
}

func (sess *Session) connectedLocked() []*Participant {
	out := make([]*Participant, 0, len(sess.participants))
	for _, p := range sess.participants {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}
