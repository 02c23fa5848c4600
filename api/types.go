package api

import (
	"context"
	"time"

	"prism-board/board"
	"prism-board/domain"
)

// Authenticator extracts the board owner from request credentials.
type Authenticator interface {
	OwnerFromAuthHeader(string) (string, error)
}

// Boards resolves the loaded board controller of an owner.
type Boards interface {
	Get(ctx context.Context, owner string) (*board.Controller, error)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, owner, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation fails.
	Remove(ctx context.Context, owner, key string) error
}

const (
	maxBodySize          = 64 * 1024 // 64 KiB
	headerIdempotencyKey = "Idempotency-Key"
)

type boardResponse struct {
	Board        domain.Board        `json:"board"`
	Stats        domain.Stats        `json:"stats"`
	Notification *board.Notification `json:"notification,omitempty"`
	InFlight     int                 `json:"inFlight"`
	LoadedAt     *time.Time          `json:"loadedAt,omitempty"`
	Queued       *bool               `json:"queued,omitempty"`
}

func snapshot(ctrl *board.Controller) boardResponse {
	resp := boardResponse{
		Board:    ctrl.Board(),
		Stats:    ctrl.Stats(),
		InFlight: ctrl.InFlight(),
	}
	if note, ok := ctrl.Notifier().Current(); ok {
		resp.Notification = &note
	}
	if at := ctrl.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = &at
	}
	return resp
}
