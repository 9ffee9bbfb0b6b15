package store

import (
	"context"
	"errors"
	"fmt"

	"Skynet/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore persists chats in SQLite or MySQL.
type GormStore struct {
	db *gorm.DB
}

func OpenGorm(dialect, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == "sqlite" {
		// sqlite allows a single writer; one connection avoids "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&models.ChatRecord{}, &models.MessageRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) AppendExchange(ctx context.Context, id, title string, msgs []models.Message) (*models.Chat, bool, error) {
	var (
		rec     models.ChatRecord
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", id).Take(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			var count, maxPos int64
			if err := tx.Model(&models.ChatRecord{}).Count(&count).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.ChatRecord{}).Select("COALESCE(MAX(position), 0)").Scan(&maxPos).Error; err != nil {
				return err
			}
			rec = models.ChatRecord{
				ID:       id,
				Title:    models.ApplyTitle("", true, title, int(count)),
				Position: maxPos + 1,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			next := models.ApplyTitle(rec.Title, false, title, 0)
			if next != rec.Title {
				if err := tx.Model(&rec).Update("title", next).Error; err != nil {
					return err
				}
			}
		}

		rows := make([]models.MessageRecord, 0, len(msgs))
		for _, m := range msgs {
			rows = append(rows, models.MessageRecord{ChatID: id, Role: m.Role, Content: m.Content})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return preloadMessages(tx).Where("id = ?", id).Take(&rec).Error
	})
	if err != nil {
		return nil, false, err
	}
	return rec.ToChat(), created, nil
}

func (s *GormStore) List(ctx context.Context) ([]models.ChatSummary, error) {
	var recs []models.ChatRecord
	if err := s.db.WithContext(ctx).Select("id", "title").Order("position ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]models.ChatSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, models.ChatSummary{ID: r.ID, Title: r.Title})
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.Chat, error) {
	var rec models.ChatRecord
	err := preloadMessages(s.db.WithContext(ctx)).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return rec.ToChat(), nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.ChatRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(id)
		}
		return tx.Where("chat_id = ?", id).Delete(&models.MessageRecord{}).Error
	})
}

func (s *GormStore) DeleteAll(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("1 = 1").Delete(&models.ChatRecord{})
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		return tx.Where("1 = 1").Delete(&models.MessageRecord{}).Error
	})
	return int(n), err
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func preloadMessages(db *gorm.DB) *gorm.DB {
	return db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("messages.id ASC")
	})
}

var _ Store = (*GormStore)(nil)
