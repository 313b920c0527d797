// Package archive keeps a record of finished drafts in Postgres. It is
// write-behind only: nothing in a live room ever reads from it.
package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/ban-pick-server/internal/engine"
	"github.com/DoyleJ11/ban-pick-server/internal/lobby"
)

type Draft struct {
	gorm.Model
	RoomID      string              `json:"roomId" gorm:"size:32;index;not null"`
	Rounds      int                 `json:"rounds" gorm:"not null"`
	BlueName    string              `json:"blueName" gorm:"size:64"`
	RedName     string              `json:"redName" gorm:"size:64"`
	Bans        []engine.BanRecord  `json:"bans" gorm:"serializer:json"`
	Picks       []engine.PickRecord `json:"picks" gorm:"serializer:json"`
	CompletedAt time.Time           `json:"completedAt" gorm:"index"`
}

type Recorder interface {
	Record(ctx context.Context, snap lobby.Snapshot) error
}

// Nop drops everything. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, lobby.Snapshot) error { return nil }

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to Postgres and migrates the drafts table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&Draft{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return New(db), nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Record(ctx context.Context, snap lobby.Snapshot) error {
	d := FromSnapshot(snap, s.now())
	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		return fmt.Errorf("record draft %s: %w", snap.RoomID, err)
	}
	return nil
}

// Recent returns the latest finished drafts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Draft, error) {
	var drafts []Draft
	err := s.db.WithContext(ctx).
		Order("completed_at desc").
		Limit(limit).
		Find(&drafts).Error
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return drafts, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func FromSnapshot(snap lobby.Snapshot, at time.Time) Draft {
	d := Draft{
		RoomID:      snap.RoomID,
		Rounds:      snap.CurrentRound,
		Bans:        snap.BannedItems,
		Picks:       snap.PickedItems,
		CompletedAt: at,
	}
	for _, p := range snap.Roster {
		switch p.Side {
		case engine.SideBlue:
			d.BlueName = p.Name
		case engine.SideRed:
			d.RedName = p.Name
		}
	}
	return d
}
