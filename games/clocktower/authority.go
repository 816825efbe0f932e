/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import "time"

// Disconnect marks connID as gone in every session it has a seat in. When
// it held host authority, the first other connected participant in join
// order becomes host. With nobody left, authority stays with connID until
// that connection rejoins.
func (s *Store) Disconnect(connID string) {
	for _, sess := range s.snapshot() {
		sess.mu.Lock()
		wasHost := sess.hostConnID == connID
		if sess.disconnectLocked(connID, s.now()) {
			if wasHost && sess.hostConnID != connID {
				s.log.Info().Str("game", sess.code).Str("conn", sess.hostConnID).Str("host", sess.hostName).Msg("host transferred")
			}
			s.broadcastLocked(sess)
		}
		sess.mu.Unlock()
	}
}

// disconnectLocked reports whether connID had a seat in the session.
func (sess *Session) disconnectLocked(connID string, now time.Time) bool {
	p := sess.participantByConnLocked(connID)
	if p == nil {
		return false
	}

	p.Connected = false
	sess.lastActive = now
	sess.appendLogLocked(now, "%s disconnected.", p.DisplayName)

	if sess.hostConnID != connID {
		return true
	}

	for _, next := range sess.participants {
		if next.Connected && next.ConnectionID != connID {
			sess.hostConnID = next.ConnectionID
			sess.hostName = next.DisplayName
			sess.appendLogLocked(now, "%s is now host.", next.DisplayName)
			break
		}
	}

	return true
}
