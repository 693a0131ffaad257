package domain

import (
	"fmt"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

func CanTransition(from, to models.Status) bool {
	switch from {
	case models.UploadedStatus:
		return to == models.ProcessingStatus || to == models.FailedStatus
	case models.ProcessingStatus:
		return to == models.ReadyStatus || to == models.FailedStatus
	default:
		return false
	}
}

func Terminal(s models.Status) bool {
	return s == models.ReadyStatus || s == models.FailedStatus
}

// ValidateTransition accepts from == to so redelivered events are no-ops.
func ValidateTransition(from, to models.Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// StatusFromResults picks the terminal status for a finished transcode.
func StatusFromResults(renditions models.Renditions) models.Status {
	for _, r := range renditions {
		if r.Error == "" && r.ETag != "" {
			return models.ReadyStatus
		}
	}
	return models.FailedStatus
}
