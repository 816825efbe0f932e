/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet has 32 symbols and leaves out 0, O, 1 and I.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	CodeLength          = 6
	ParticipantIDLength = 4

	maxIDAttempts = 100
)

// IDGenerator returns a random identifier of the given length.
type IDGenerator func(size int) (string, error)

func nanoID(size int) (string, error) {
	id, err := gonanoid.Generate(Alphabet, size)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id, nil
}

// NormalizeCode trims and upper-cases a user supplied session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
