package dialogue

import (
	"context"

	"kra-assist/internal/models"
)

const (
	DefaultMaxTurns = 20
	redisKeyPrefix  = "dialogue:"
)

// Store holds each user's turns in insertion order. GetHistory returns an
// empty slice for an unseen or expired user.
type Store interface {
	GetHistory(ctx context.Context, userID string) ([]models.Turn, error)
	AppendTurn(ctx context.Context, userID string, turn models.Turn) error
}
