package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/courtside/livescore/models"
	"github.com/courtside/livescore/storage"
)

// ArchiveService выгружает финальные снапшоты завершённых матчей в объектное
// хранилище. Это побочный эффект завершения матча, ошибки не блокируют счёт.
type ArchiveService struct {
	uploader storage.FileUploader
	logger   *slog.Logger
}

func NewArchiveService(uploader storage.FileUploader, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		uploader: uploader,
		logger:   logger,
	}
}

func (s *ArchiveService) ArchiveFinal(ctx context.Context, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for match %s: %w", snap.ID, err)
	}

	key := fmt.Sprintf("matches/%s/final.json", snap.ID)
	result, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to upload final snapshot for match %s: %w", snap.ID, err)
	}

	s.logger.Info("final match snapshot archived",
		slog.String("match_id", snap.ID),
		slog.String("key", result.Key),
		slog.String("location", result.Location),
	)
	return nil
}
