// Package fleet holds the data records shared by the scheduler, fleet
// state, strategy, and commander packages: priorities, events, ship
// capability snapshots, and the strategy's plan output.
package fleet

import "sort"

// Priority is a scheduler priority class. Lower values are served first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	case PriorityBackground:
		return "BACKGROUND"
	default:
		return "UNKNOWN"
	}
}

// EventType enumerates the kinds of FleetEvent the missions emit.
type EventType string

const (
	EventTradeCompleted    EventType = "TRADE_COMPLETED"
	EventTradeDry          EventType = "TRADE_DRY"
	EventContractFulfilled EventType = "CONTRACT_FULFILLED"
	EventContractDelivery  EventType = "CONTRACT_DELIVERY"
	EventGateDelivery      EventType = "GATE_DELIVERY"
	EventGateComplete      EventType = "GATE_COMPLETE"
	EventScanComplete      EventType = "SCAN_COMPLETE"
	EventMissionCrashed    EventType = "MISSION_CRASHED"
	EventMissionEnded      EventType = "MISSION_ENDED"
	EventCapitalLow        EventType = "CAPITAL_LOW"
)

// strategicEvents triggers a FleetStrategy re-evaluation when observed by
// the Commander's main loop.
var strategicEvents = map[EventType]bool{
	EventTradeCompleted:    true,
	EventTradeDry:          true,
	EventContractFulfilled: true,
	EventGateDelivery:      true,
	EventGateComplete:      true,
	EventMissionCrashed:    true,
	EventMissionEnded:      true,
	EventCapitalLow:        true,
}

// IsStrategic reports whether this event type should trigger re-evaluation.
func (t EventType) IsStrategic() bool {
	return strategicEvents[t]
}

// Event is an immutable record of something a mission observed.
type Event struct {
	Type              EventType
	ShipSymbol        string
	MonotonicTimestamp int64
	Data              map[string]interface{}
}

// ShipCategory partitions ships for FleetStrategy's decision order.
type ShipCategory string

const (
	CategoryProbe    ShipCategory = "probe"
	CategoryShip     ShipCategory = "ship"
	CategorySentinel ShipCategory = "sentinel"
	CategoryDisabled ShipCategory = "disabled"
)

// MissionKind names the four registered missions plus IDLE.
type MissionKind string

const (
	MissionIdle      MissionKind = "IDLE"
	MissionTrade     MissionKind = "TRADE"
	MissionScan      MissionKind = "SCAN"
	MissionContract  MissionKind = "CONTRACT"
	MissionGateBuild MissionKind = "GATE_BUILD"
)

// ShipCapability is the flat record FleetStrategy consumes per ship.
type ShipCapability struct {
	Symbol          string
	CargoCapacity   int
	FuelCapacity    int
	Category        ShipCategory
	CurrentMission  MissionKind
}

// ShipAssignment is one entry of a FleetPlan: a ship's next mission and its
// mission-specific keyword arguments.
type ShipAssignment struct {
	Mission MissionKind
	Kwargs  map[string]interface{}
}

// FleetPlan is FleetStrategy's full output: every known ship's next
// assignment.
type FleetPlan struct {
	Assignments map[string]ShipAssignment
}

// ChangesFrom returns only the entries whose mission differs from current.
// Ships present in the plan but not in current, or whose mission changed,
// are included; ships unchanged are omitted.
func (p FleetPlan) ChangesFrom(current map[string]ShipAssignment) map[string]ShipAssignment {
	changed := make(map[string]ShipAssignment)
	for ship, next := range p.Assignments {
		prev, ok := current[ship]
		if !ok || prev.Mission != next.Mission {
			changed[ship] = next
		}
	}
	return changed
}

// CapitalPolicy gates FleetStrategy's GATE_BUILD/TRADE/IDLE decisions.
type CapitalPolicy struct {
	GateFloor     int
	TradeMin      int
	IdleThreshold int
}

// DefaultCapitalPolicy matches spec §4.6's defaults.
func DefaultCapitalPolicy() CapitalPolicy {
	return CapitalPolicy{GateFloor: 300000, TradeMin: 50000, IdleThreshold: 30000}
}

// WorldState is FleetStrategy.Evaluate's sole input: everything the pure
// decision function needs to know about the world, with no I/O capability.
type WorldState struct {
	Credits                int
	Ships                  []ShipCapability
	CurrentAssignments     map[string]ShipAssignment
	HasActiveContract      bool
	ContractProfitable     bool
	GateNeedsSupplies      bool
	MarketRoutesAvailable  bool
	SkipShips              map[string]bool
	Overrides              map[string]string
	Policy                 CapitalPolicy
}

// TradeRoute is a pure value describing one candidate trade leg, ranked by
// ProfitPerMinute descending.
type TradeRoute struct {
	Good                 string
	Source                string
	Destination           string
	BuyPrice              int
	SellPrice             int
	TradeVolume           int
	ProfitPerUnit         int
	DeadheadFuelCredits   int
	LegFuelCredits        int
	DestSupply            string
	DestTradeVolume       int
	TripSeconds           int
	NetProfit             int
	ProfitPerMinute       float64
}

// SortTradeRoutes ranks routes by ProfitPerMinute descending, in place.
func SortTradeRoutes(routes []TradeRoute) {
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].ProfitPerMinute > routes[j].ProfitPerMinute
	})
}

// RouteClaim is a system's record of which ship owns a trade route.
type RouteClaim struct {
	Good        string
	Source      string
	Destination string
}

// ParseMissionKind parses a CLI/override mission string ("TRADE", "trade",
// ...), returning ok=false if it names neither IDLE nor one of the four
// registered missions.
func ParseMissionKind(s string) (MissionKind, bool) {
	switch MissionKind(upper(s)) {
	case MissionTrade:
		return MissionTrade, true
	case MissionScan:
		return MissionScan, true
	case MissionContract:
		return MissionContract, true
	case MissionGateBuild:
		return MissionGateBuild, true
	case MissionIdle:
		return MissionIdle, true
	default:
		return MissionIdle, false
	}
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}
