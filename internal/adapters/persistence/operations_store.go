package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OperationsStore is the append-only operations log: trades, extractions,
// and periodic agent snapshots, plus the read paths the external dashboard
// uses (not exercised by the core itself).
type OperationsStore struct {
	db *gorm.DB
}

func NewOperationsStore(db *gorm.DB) *OperationsStore {
	return &OperationsStore{db: db}
}

// RecordTrade appends one buy/sell line.
func (s *OperationsStore) RecordTrade(ctx context.Context, ship, side, good string, units, pricePerUnit, total int, waypoint string, credits int, mission string) error {
	rec := TradeRecord{
		ID:           uuid.NewString(),
		ShipSymbol:   ship,
		Side:         side,
		GoodSymbol:   good,
		Units:        units,
		PricePerUnit: pricePerUnit,
		Total:        total,
		Waypoint:     waypoint,
		Credits:      credits,
		Mission:      mission,
		CreatedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// RecordExtraction appends one extraction-yield line.
func (s *OperationsStore) RecordExtraction(ctx context.Context, ship, waypoint, good string, units int) error {
	rec := ExtractionRecord{
		ID:         uuid.NewString(),
		ShipSymbol: ship,
		Waypoint:   waypoint,
		GoodSymbol: good,
		Units:      units,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record extraction: %w", err)
	}
	return nil
}

// SnapshotAgent appends a credits/ship-count sample, called by the
// Commander every SNAPSHOT_EVERY_N_CYCLES loop iterations.
func (s *OperationsStore) SnapshotAgent(ctx context.Context, credits, shipCount int) error {
	rec := AgentSnapshot{Credits: credits, ShipCount: shipCount, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("snapshot agent: %w", err)
	}
	return nil
}

// RecentSnapshots returns the most recent n agent snapshots, newest first.
// Serves the external dashboard's read path.
func (s *OperationsStore) RecentSnapshots(ctx context.Context, n int) ([]AgentSnapshot, error) {
	var rows []AgentSnapshot
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(n).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	return rows, nil
}

// RecentTrades returns the most recent n trade records for ship ("" for
// every ship), newest first. Serves the external dashboard's read path.
func (s *OperationsStore) RecentTrades(ctx context.Context, ship string, n int) ([]TradeRecord, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(n)
	if ship != "" {
		q = q.Where("ship_symbol = ?", ship)
	}
	var rows []TradeRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	return rows, nil
}
