package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yetifarm/core/events"
)

// DefaultLimit caps List results when the caller does not.
const DefaultLimit = 100

// MaxLimit is the largest page List returns.
const MaxLimit = 1000

// Record is one journaled farm event.
type Record struct {
	ID         uint      `gorm:"primaryKey"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"index"`
	Address    string    `gorm:"index"`
	Amount     string
	Label      string
	Attributes string
	CreatedAt  time.Time
}

// Attrs decodes the stored attribute map.
func (r Record) Attrs() map[string]string {
	out := map[string]string{}
	if r.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type    string
	Address string
	Limit   int
}

// Open connects to the journal database. postgres:// and postgresql:// DSNs
// use the Postgres driver; anything else is treated as a SQLite DSN.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("explorer: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("explorer: open journal: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate performs the journal schema migrations.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("explorer: migrate: %w", err)
	}
	return nil
}

// Journal persists farm events and serves them back for history queries. It
// implements events.Emitter.
type Journal struct {
	db          *gorm.DB
	logger      *slog.Logger
	stakedAsset string
	rewardAsset string
	now         func() time.Time
}

// NewJournal wraps db. The asset symbols are used for record labels.
func NewJournal(db *gorm.DB, stakedAsset, rewardAsset string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		db:          db,
		logger:      logger,
		stakedAsset: stakedAsset,
		rewardAsset: rewardAsset,
		now:         time.Now,
	}
}

// Emit records evt. Emitters cannot fail, so write errors are logged.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if err := j.Record(context.Background(), evt); err != nil {
		j.logger.Error("journal farm event", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Record writes evt and returns the storage error, if any.
func (j *Journal) Record(ctx context.Context, evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return nil
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return fmt.Errorf("explorer: encode attributes: %w", err)
	}
	amount, asset := j.amountOf(payload.Type, payload.Attributes)
	record := &Record{
		EventID:    uuid.New(),
		Type:       payload.Type,
		Address:    payload.Attributes["addr"],
		Amount:     amount,
		Label:      EventLabel(payload.Type, amount, asset),
		Attributes: string(attrs),
		CreatedAt:  j.now().UTC(),
	}
	return j.db.WithContext(ctx).Create(record).Error
}

func (j *Journal) amountOf(eventType string, attrs map[string]string) (string, string) {
	switch eventType {
	case events.TypeFarmStaked, events.TypeFarmWithdrawn:
		return attrs["amount"], j.stakedAsset
	default:
		return attrs["reward"], j.rewardAsset
	}
}

// List returns journaled events, newest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query := j.db.WithContext(ctx).Model(&Record{})
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if addr := strings.TrimSpace(filter.Address); addr != "" {
		query = query.Where("address = ?", addr)
	}
	var records []Record
	if err := query.Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("explorer: list events: %w", err)
	}
	return records, nil
}
