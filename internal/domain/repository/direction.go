package repository

import "PulseDeck/internal/domain/models"

// IsValidDirection returns true if d is a supported direction.
func IsValidDirection(d models.Direction) bool {
	switch d {
	case models.DirectionCall, models.DirectionPut:
		return true
	default:
		return false
	}
}

// ParseDirection converts a raw string to a direction, reporting validity.
func ParseDirection(s string) (models.Direction, bool) {
	d := models.Direction(s)
	return d, IsValidDirection(d)
}
