package persistence

import "time"

// MarketData is one (waypoint, good) price row: the market store's sole
// read/write unit. One row per good per waypoint; MarketStore.UpsertMarket replaces
// a waypoint's full good set atomically.
type MarketData struct {
	WaypointSymbol string    `gorm:"primaryKey;size:64;not null"`
	GoodSymbol     string    `gorm:"primaryKey;size:64;not null"`
	SystemSymbol   string    `gorm:"size:32;index;not null"`
	Supply         string    `gorm:"size:32"`
	Activity       string    `gorm:"size:32"`
	PurchasePrice  int       `gorm:"not null"`
	SellPrice      int       `gorm:"not null"`
	TradeVolume    int       `gorm:"not null"`
	TradeType      string    `gorm:"size:16"` // EXPORT, IMPORT, EXCHANGE
	UpdatedAt      time.Time `gorm:"index;not null"`
}

func (MarketData) TableName() string {
	return "market_data"
}

// RouteClaimRecord persists a trade-route claim so a second process sharing
// the same data directory honors it too; in-process contention is already
// resolved by FleetState. Stale claims older than 15 minutes are ignored by
// readers rather than deleted, per spec §6.
type RouteClaimRecord struct {
	SystemSymbol string `gorm:"primaryKey;size:32"`
	ShipSymbol   string `gorm:"primaryKey;size:16"`
	GoodSymbol   string `gorm:"size:64;not null"`
	Source       string `gorm:"size:64;not null"`
	Destination  string `gorm:"size:64;not null"`
	ClaimedAt    time.Time `gorm:"index;not null"`
}

func (RouteClaimRecord) TableName() string {
	return "route_claims"
}

// TradeRecord is one append-only buy/sell line in the operations log.
type TradeRecord struct {
	ID           string    `gorm:"primaryKey;size:36"`
	ShipSymbol   string    `gorm:"size:16;index;not null"`
	Side         string    `gorm:"size:8;not null"` // BUY, SELL
	GoodSymbol   string    `gorm:"size:64;not null"`
	Units        int       `gorm:"not null"`
	PricePerUnit int       `gorm:"not null"`
	Total        int       `gorm:"not null"`
	Waypoint     string    `gorm:"size:64;not null"`
	Credits      int       `gorm:"not null"`
	Mission      string    `gorm:"size:16;not null"`
	CreatedAt    time.Time `gorm:"index;not null"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

// ExtractionRecord is one append-only extraction-yield line.
type ExtractionRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	ShipSymbol string    `gorm:"size:16;index;not null"`
	Waypoint   string    `gorm:"size:64;not null"`
	GoodSymbol string    `gorm:"size:64;not null"`
	Units      int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index;not null"`
}

func (ExtractionRecord) TableName() string {
	return "extraction_records"
}

// AgentSnapshot is a periodic credits/ship-count sample the Commander
// records every SNAPSHOT_EVERY_N_CYCLES loop iterations.
type AgentSnapshot struct {
	ID        int       `gorm:"primaryKey;autoIncrement"`
	Credits   int       `gorm:"not null"`
	ShipCount int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"index;not null"`
}

func (AgentSnapshot) TableName() string {
	return "agent_snapshots"
}
