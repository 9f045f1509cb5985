package usecase

import (
	"context"
	"fmt"
	"time"

	"MycoCast/internal/domain/models"
	domrepo "MycoCast/internal/domain/repository"
)

// TelemetryQueryUseCase provides read access to stored telemetry history.
type TelemetryQueryUseCase struct {
	store domrepo.Storage
}

func NewTelemetryQueryUseCase(store domrepo.Storage) *TelemetryQueryUseCase {
	return &TelemetryQueryUseCase{store: store}
}

type GetTelemetryParams struct {
	Region string
	From   time.Time
	To     time.Time
	Limit  int
}

type GetTelemetryResult struct {
	Region    string
	From      time.Time
	To        time.Time
	Count     int
	Snapshots []*models.TelemetrySnapshot
}

func (uc *TelemetryQueryUseCase) GetTelemetry(ctx context.Context, p GetTelemetryParams) (*GetTelemetryResult, error) {
	if p.Region == "" {
		return nil, fmt.Errorf("region required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	snaps, err := uc.store.Query(ctx, p.Region, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get telemetry: %w", err)
	}
	if len(snaps) > p.Limit {
		snaps = snaps[:p.Limit]
	}

	return &GetTelemetryResult{
		Region:    p.Region,
		From:      p.From,
		To:        p.To,
		Count:     len(snaps),
		Snapshots: snaps,
	}, nil
}
