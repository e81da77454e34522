package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/google/uuid"
)

// CreateGlideConfig stores a Glide target. The API token is encrypted when
// token encryption is enabled.
func (d *Database) CreateGlideConfig(ctx context.Context, cfg *models.GlideConfig) error {
	now := d.now()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.SupabaseTableName == "" {
		cfg.SupabaseTableName = "telegram_media"
	}
	cfg.CreatedAt, cfg.UpdatedAt = now, now

	token, err := d.encryptor.Encrypt(cfg.APIToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt glide token: %w", err)
	}

	if _, err := d.exec(ctx, InsertGlideConfigQuery,
		cfg.ID, cfg.AppID, cfg.TableID, token, cfg.SupabaseTableName, cfg.ColumnMapping,
		cfg.Active, cfg.CreatedAt, cfg.UpdatedAt,
	); err != nil {
		return dbError("insert glide config", err)
	}
	return nil
}

func (d *Database) GetGlideConfig(ctx context.Context, id string) (*models.GlideConfig, error) {
	var cfg models.GlideConfig
	if err := d.get(ctx, &cfg, SelectGlideConfigByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("glide config", id)
		}
		return nil, dbError("select glide config", err)
	}
	if err := d.decryptToken(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (d *Database) ListActiveGlideConfigs(ctx context.Context) ([]*models.GlideConfig, error) {
	var cfgs []*models.GlideConfig
	if err := d.selectAll(ctx, &cfgs, SelectActiveGlideConfigsQuery, true); err != nil {
		return nil, dbError("select glide configs", err)
	}
	for _, cfg := range cfgs {
		if err := d.decryptToken(cfg); err != nil {
			return nil, err
		}
	}
	return cfgs, nil
}

func (d *Database) decryptToken(cfg *models.GlideConfig) error {
	token, err := d.encryptor.Decrypt(cfg.APIToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt glide token for config %s: %w", cfg.ID, err)
	}
	cfg.APIToken = token
	return nil
}
