package steps

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"

	"github.com/andrescamacho/fleetcmd/internal/navigation"
)

type safeSellVolumeContext struct {
	supply        string
	activity      string
	tradeVolume   int
	cargoCapacity int
	result        int
}

func (c *safeSellVolumeContext) reset(*godog.Scenario) {
	*c = safeSellVolumeContext{}
}

func (c *safeSellVolumeContext) aDestinationMarketWithSupplyAndActivity(supply, activity string) error {
	c.supply = supply
	c.activity = activity
	return nil
}

func (c *safeSellVolumeContext) aTradeVolumeOfAndCargoCapacity(volume, cargo int) error {
	c.tradeVolume = volume
	c.cargoCapacity = cargo
	return nil
}

func (c *safeSellVolumeContext) theSafeSellVolumeIsComputed() error {
	c.result = navigation.SafeSellVolume(c.supply, c.activity, c.tradeVolume, c.cargoCapacity)
	return nil
}

func (c *safeSellVolumeContext) theSafeSellVolumeShouldBe(expected int) error {
	if c.result != expected {
		return fmt.Errorf("expected safe sell volume %d, got %d", expected, c.result)
	}
	return nil
}

// InitializeSafeSellVolumeScenario registers the safe-sell-volume step
// definitions with the godog scenario context.
func InitializeSafeSellVolumeScenario(sc *godog.ScenarioContext) {
	c := &safeSellVolumeContext{}
	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		c.reset(s)
		return ctx, nil
	})

	sc.Step(`^a destination market with supply "([^"]*)" and activity "([^"]*)"$`, c.aDestinationMarketWithSupplyAndActivity)
	sc.Step(`^a trade volume of (\d+) and cargo capacity (\d+)$`, c.aTradeVolumeOfAndCargoCapacity)
	sc.Step(`^the safe sell volume is computed$`, c.theSafeSellVolumeIsComputed)
	sc.Step(`^the safe sell volume should be (\d+)$`, c.theSafeSellVolumeShouldBe)
}
