package stakingd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tuturu-tech/nft-staking/core/events"
	"github.com/tuturu-tech/nft-staking/observability"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// EventRecord is one ledger event as kept in the history database.
type EventRecord struct {
	Sequence   uint64    `gorm:"primaryKey;autoIncrement" json:"sequence"`
	EventID    string    `gorm:"type:varchar(36);uniqueIndex" json:"id"`
	Type       string    `gorm:"index" json:"type"`
	Account    string    `gorm:"index" json:"account,omitempty"`
	Attributes string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name.
func (EventRecord) TableName() string { return "ledger_events" }

// Decoded returns the event attributes.
func (r EventRecord) Decoded() map[string]string {
	out := map[string]string{}
	if r.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// History appends every ledger event to a SQL table and serves per-account
// listings.
type History struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenHistory opens (or creates) the history database at dsn.
func OpenHistory(dsn string, logger *slog.Logger) (*History, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("history: dsn required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged and counted; they never
// reach the ledger.
func (h *History) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		h.drop(payload.Type, err)
		return
	}
	record := EventRecord{
		EventID:    uuid.NewString(),
		Type:       payload.Type,
		Account:    accountOf(payload.Attributes),
		Attributes: string(attrs),
		CreatedAt:  h.now().UTC(),
	}
	if err := h.db.Create(&record).Error; err != nil {
		h.drop(payload.Type, err)
	}
}

func (h *History) drop(eventType string, err error) {
	h.logger.Error("history: persist event", "type", eventType, "error", err)
	observability.Events().RecordDropped("history")
}

// List returns up to limit events touching account, newest first.
func (h *History) List(ctx context.Context, account common.Address, limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	var records []EventRecord
	err := h.db.WithContext(ctx).
		Where("account = ?", account.Hex()).
		Order("sequence DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// accountOf picks the account an event belongs to. Admin events are filed
// under the admin.
func accountOf(attrs map[string]string) string {
	for _, key := range []string{"account", "admin", "to"} {
		if v := attrs[key]; v != "" {
			return v
		}
	}
	return ""
}
