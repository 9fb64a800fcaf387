package pending

import (
	"context"
	"strconv"

	"github.com/xaenox/scan-bot/internal/models"
)

// Store holds at most one file per user awaiting a processing decision.
// Take is read-once: a returned file is removed.
type Store interface {
	Put(ctx context.Context, userID int64, file models.PendingFile) error
	Take(ctx context.Context, userID int64) (models.PendingFile, bool, error)
}

// Drivers
const (
	DriverMemory  = "memory"
	DriverStorage = "storage"
)

func pendingKey(userID int64) string {
	return "pending:" + strconv.FormatInt(userID, 10)
}
