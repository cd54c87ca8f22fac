// Package persistence implements the market and operations stores: the two
// external collaborators the core reads and writes through, per spec §6.
package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// GoodPrice is one good's cached price row as the core consumes it.
type GoodPrice struct {
	Waypoint      string
	Good          string
	Type          string
	Supply        string
	Activity      string
	PurchasePrice int
	SellPrice     int
	TradeVolume   int
	UpdatedAt     time.Time
}

// MarketStore is the GORM-backed cached-price store every mission reads
// through to plan routes and writes through whenever it refreshes a market
// live.
type MarketStore struct {
	db *gorm.DB
}

func NewMarketStore(db *gorm.DB) *MarketStore {
	return &MarketStore{db: db}
}

// UpsertMarket replaces waypoint's full cached good set atomically:
// delete-then-bulk-insert, matching the upstream market snapshot exactly.
func (s *MarketStore) UpsertMarket(ctx context.Context, system, waypoint string, goods []GoodPrice, timestamp time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("waypoint_symbol = ?", waypoint).Delete(&MarketData{}).Error; err != nil {
			return fmt.Errorf("delete stale market data: %w", err)
		}
		if len(goods) == 0 {
			return nil
		}
		rows := make([]MarketData, len(goods))
		for i, g := range goods {
			rows[i] = MarketData{
				WaypointSymbol: waypoint,
				GoodSymbol:     g.Good,
				SystemSymbol:   system,
				Supply:         g.Supply,
				Activity:       g.Activity,
				PurchasePrice:  g.PurchasePrice,
				SellPrice:      g.SellPrice,
				TradeVolume:    g.TradeVolume,
				TradeType:      g.Type,
				UpdatedAt:      timestamp,
			}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert market data: %w", err)
		}
		return nil
	})
}

// GetPrices returns every cached good row for waypoint.
func (s *MarketStore) GetPrices(ctx context.Context, waypoint string) ([]GoodPrice, error) {
	var rows []MarketData
	if err := s.db.WithContext(ctx).Where("waypoint_symbol = ?", waypoint).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	return toGoodPrices(rows), nil
}

// GetAllMarkets returns every distinct waypoint with cached prices, scoped
// to system when non-empty.
func (s *MarketStore) GetAllMarkets(ctx context.Context, system string) ([]string, error) {
	q := s.db.WithContext(ctx).Model(&MarketData{})
	if system != "" {
		q = q.Where("system_symbol = ?", system)
	}
	var waypoints []string
	if err := q.Distinct().Pluck("waypoint_symbol", &waypoints).Error; err != nil {
		return nil, fmt.Errorf("get all markets: %w", err)
	}
	return waypoints, nil
}

// GetStaleMarkets returns waypoints whose newest cached price is older than
// maxAgeHours.
func (s *MarketStore) GetStaleMarkets(ctx context.Context, system string, maxAgeHours float64) ([]string, error) {
	cutoff := time.Now().Add(-time.Duration(maxAgeHours * float64(time.Hour)))
	q := s.db.WithContext(ctx).Model(&MarketData{}).Where("updated_at < ?", cutoff)
	if system != "" {
		q = q.Where("system_symbol = ?", system)
	}
	var waypoints []string
	if err := q.Distinct().Pluck("waypoint_symbol", &waypoints).Error; err != nil {
		return nil, fmt.Errorf("get stale markets: %w", err)
	}
	return waypoints, nil
}

// FindBestBuy returns the lowest purchase-price cached row for good, scoped
// to system.
func (s *MarketStore) FindBestBuy(ctx context.Context, good, system string) (*GoodPrice, error) {
	var row MarketData
	q := s.db.WithContext(ctx).Where("good_symbol = ?", good)
	if system != "" {
		q = q.Where("system_symbol = ?", system)
	}
	err := q.Order("purchase_price ASC").Limit(1).Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("find best buy: %w", err)
	}
	if row.WaypointSymbol == "" {
		return nil, nil
	}
	price := toGoodPrices([]MarketData{row})[0]
	return &price, nil
}

// FindBestSell returns the highest sell-price cached row for good, scoped to
// system.
func (s *MarketStore) FindBestSell(ctx context.Context, good, system string) (*GoodPrice, error) {
	var row MarketData
	q := s.db.WithContext(ctx).Where("good_symbol = ?", good)
	if system != "" {
		q = q.Where("system_symbol = ?", system)
	}
	err := q.Order("sell_price DESC").Limit(1).Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("find best sell: %w", err)
	}
	if row.WaypointSymbol == "" {
		return nil, nil
	}
	price := toGoodPrices([]MarketData{row})[0]
	return &price, nil
}

// HasProfitableRoutes reports whether system's cached prices contain any
// non-empty EXPORT/IMPORT overlap where the import price exceeds the
// export price, gating the FleetStrategy's TRADE decision. This resolves
// the open question of the predicate's exact definition: positive-delta
// overlap at distinct waypoints.
func (s *MarketStore) HasProfitableRoutes(ctx context.Context, system string) (bool, error) {
	var rows []MarketData
	err := s.db.WithContext(ctx).Where("system_symbol = ? AND (trade_type = ? OR trade_type = ?)", system, "EXPORT", "IMPORT").Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("has profitable routes: %w", err)
	}

	exports := make(map[string][]MarketData)
	imports := make(map[string][]MarketData)
	for _, r := range rows {
		if r.TradeType == "EXPORT" {
			exports[r.GoodSymbol] = append(exports[r.GoodSymbol], r)
		} else {
			imports[r.GoodSymbol] = append(imports[r.GoodSymbol], r)
		}
	}

	for good, sources := range exports {
		for _, dest := range imports[good] {
			for _, src := range sources {
				if src.WaypointSymbol != dest.WaypointSymbol && dest.SellPrice > src.PurchasePrice {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// ClaimRoute persists a route claim for cross-process legacy compatibility;
// in-process exclusivity is resolved by internal/fleet/state.FleetState.
func (s *MarketStore) ClaimRoute(ctx context.Context, system, ship, good, source, dest string) error {
	claim := RouteClaimRecord{
		SystemSymbol: system,
		ShipSymbol:   ship,
		GoodSymbol:   good,
		Source:       source,
		Destination:  dest,
		ClaimedAt:    time.Now(),
	}
	return s.db.WithContext(ctx).Save(&claim).Error
}

// ReleaseRoute drops ship's persisted claim in system.
func (s *MarketStore) ReleaseRoute(ctx context.Context, system, ship string) error {
	return s.db.WithContext(ctx).
		Where("system_symbol = ? AND ship_symbol = ?", system, ship).
		Delete(&RouteClaimRecord{}).Error
}

// GetClaimedRoutes returns every non-stale claim in system held by a ship
// other than excludeShip. maxAgeMin defaults to 15 when <= 0.
func (s *MarketStore) GetClaimedRoutes(ctx context.Context, system, excludeShip string, maxAgeMin int) ([]RouteClaimRecord, error) {
	if maxAgeMin <= 0 {
		maxAgeMin = 15
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeMin) * time.Minute)
	var claims []RouteClaimRecord
	err := s.db.WithContext(ctx).
		Where("system_symbol = ? AND ship_symbol <> ? AND claimed_at >= ?", system, excludeShip, cutoff).
		Find(&claims).Error
	if err != nil {
		return nil, fmt.Errorf("get claimed routes: %w", err)
	}
	return claims, nil
}

func toGoodPrices(rows []MarketData) []GoodPrice {
	out := make([]GoodPrice, len(rows))
	for i, r := range rows {
		out[i] = GoodPrice{
			Waypoint:      r.WaypointSymbol,
			Good:          r.GoodSymbol,
			Type:          r.TradeType,
			Supply:        r.Supply,
			Activity:      r.Activity,
			PurchasePrice: r.PurchasePrice,
			SellPrice:     r.SellPrice,
			TradeVolume:   r.TradeVolume,
			UpdatedAt:     r.UpdatedAt,
		}
	}
	return out
}

// systemFromWaypoint derives "X1-AB12" from "X1-AB12-C3", the upstream
// waypoint-symbol convention.
func systemFromWaypoint(waypoint string) string {
	parts := strings.Split(waypoint, "-")
	if len(parts) < 2 {
		return waypoint
	}
	return parts[0] + "-" + parts[1]
}
