/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import (
	"slices"
	"strings"
	"time"
)

// Join seats connID in the session, or reconnects its existing seat. Anyone
// may join; no host check applies.
func (s *Store) Join(code, connID, name string) (*Session, error) {
	sess, ok := s.Lookup(code)
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	p, err := sess.joinLocked(connID, name, s.newID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess.appendLogLocked(now, "%s joined the game.", p.DisplayName)
	sess.lastActive = now

	s.log.Info().Str("game", sess.code).Str("conn", connID).Str("player", p.ID).Str("name", p.DisplayName).Msg("player joined")

	s.broadcastLocked(sess)

	return sess, nil
}

// UpdateRoles replaces the selected role pool.
func (s *Store) UpdateRoles(code, connID string, roles []string) error {
	roles = SanitizeRoles(roles)

	return s.mutate(code, connID, func(sess *Session, now time.Time) error {
		sess.selectedRoles = roles
		sess.appendLogLocked(now, "Roles updated (%d selected).", len(roles))
		return nil
	})
}

// RandomizeRolePool replaces the selected pool with playerCount roles drawn
// from the full catalog. A non-positive playerCount falls back to the
// roster size, then to 1.
func (s *Store) RandomizeRolePool(code, connID string, playerCount int) ([]string, error) {
	var pool []string

	err := s.mutate(code, connID, func(sess *Session, now time.Time) error {
		count := playerCount
		if count <= 0 {
			count = max(len(sess.participants), 1)
		}

		pool = RolePool(count, s.catalog.Names)
		sess.selectedRoles = pool
		sess.appendLogLocked(now, "Randomized role pool for %d players.", count)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(pool), nil
}

// RandomAssignRoles deals a shuffled pool built from the selected roles to
// the roster in join order. Participants beyond MaxPoolSize are left
// without a role.
func (s *Store) RandomAssignRoles(code, connID string) error {
	return s.mutate(code, connID, func(sess *Session, now time.Time) error {
		if len(sess.participants) == 0 {
			return ErrNoPlayers
		}

		source := sess.selectedRoles
		if len(source) == 0 {
			source = s.catalog.Names
		}

		pool := Shuffle(RolePool(len(sess.participants), source))
		for i, p := range sess.participants {
			p.Role = ""
			if i < len(pool) {
				p.Role = pool[i]
			}
		}

		sess.appendLogLocked(now, "Randomly assigned roles to %d players.", len(sess.participants))
		return nil
	})
}

// Start moves the session out of the lobby into the first night.
func (s *Store) Start(code, connID string) error {
	return s.mutate(code, connID, func(sess *Session, now time.Time) error {
		sess.status = StatusInProgress
		sess.phase = PhaseNight
		sess.day = 1
		sess.appendLogLocked(now, "Game started: Night 1 begins.")
		return nil
	})
}

// NextPhase flips night to day, or day (and setup) to the next night.
// It does not check that the session was started.
func (s *Store) NextPhase(code, connID string) error {
	return s.mutate(code, connID, func(sess *Session, now time.Time) error {
		if sess.phase == PhaseNight {
			sess.phase = PhaseDay
			sess.appendLogLocked(now, "Day %d begins.", sess.day)
			return nil
		}

		sess.phase = PhaseNight
		sess.day++
		sess.appendLogLocked(now, "Night %d begins.", sess.day)
		return nil
	})
}

func (s *Store) ToggleAlive(code, connID, playerID string) error {
	return s.mutate(code, connID, func(sess *Session, now time.Time) error {
		p := sess.participantLocked(playerID)
		if p == nil {
			return ErrParticipantNotFound
		}

		p.Alive = !p.Alive

		state := "dead"
		if p.Alive {
			state = "alive"
		}
		sess.appendLogLocked(now, "%s is now %s.", p.DisplayName, state)
		return nil
	})
}

// AssignRole sets a participant's role; a blank role clears it. The role
// does not need to be in the selected pool.
func (s *Store) AssignRole(code, connID, playerID, role string) error {
	role = strings.TrimSpace(role)

	return s.mutate(code, connID, func(sess *Session, now time.Time) error {
		p := sess.participantLocked(playerID)
		if p == nil {
			return ErrParticipantNotFound
		}

		p.Role = role
		if role == "" {
			sess.appendLogLocked(now, "%s role cleared.", p.DisplayName)
		} else {
			sess.appendLogLocked(now, "%s role set to %s.", p.DisplayName, role)
		}
		return nil
	})
}

func (s *Store) AddLogEntry(code, connID, text string) error {
	text = strings.TrimSpace(text)

	return s.mutate(code, connID, func(sess *Session, now time.Time) error {
		if text == "" {
			return ErrEmptyEntry
		}

		sess.log = append(sess.log, LogEntry{Timestamp: now, Text: text})
		return nil
	})
}
