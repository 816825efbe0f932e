/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import (
	"maps"
	"slices"
)

// View is what a single viewer is shown of a session. Only the log depends
// on the viewer: the host sees every entry, everyone else sees none.
//
// Assigned roles are visible to every viewer.
type View struct {
	GameID           string              `json:"gameId"`
	HostConnectionID string              `json:"hostConnectionId"`
	HostName         string              `json:"hostName"`
	Status           Status              `json:"status"`
	Phase            Phase               `json:"phase"`
	Day              int                 `json:"day"`
	SelectedRoles    []string            `json:"selectedRoles"`
	RoleInfo         map[string]RoleInfo `json:"roleInfo"`
	Players          []Participant       `json:"players"`
	Log              []LogEntry          `json:"log"`
}

// Project returns the session as seen by viewerConnID.
func (sess *Session) Project(viewerConnID string) View {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.projectLocked(viewerConnID)
}

func (sess *Session) projectLocked(viewerConnID string) View {
	players := make([]Participant, 0, len(sess.participants))
	for _, p := range sess.participants {
		players = append(players, *p)
	}

	log := []LogEntry{}
	if viewerConnID == sess.hostConnID {
		log = slices.Clone(sess.log)
	}

	roles := slices.Clone(sess.selectedRoles)
	if roles == nil {
		roles = []string{}
	}

	return View{
		GameID:           sess.code,
		HostConnectionID: sess.hostConnID,
		HostName:         sess.hostName,
		Status:           sess.status,
		Phase:            sess.phase,
		Day:              sess.day,
		SelectedRoles:    roles,
		RoleInfo:         maps.Clone(sess.roleInfo),
		Players:          players,
		Log:              log,
	}
}
