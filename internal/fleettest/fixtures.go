package fleettest

import (
	"time"

	"washdeck/internal/device"
)

// Fleet returns the canonical three-device test fleet: an idle washer, a
// washer running for user 7 with ten minutes left, and an idle dryer.
func Fleet() []device.Device {
	userID := int64(7)
	timeLeft := int64(600)
	endTime := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)

	return []device.Device{
		{ID: 1, Name: "Washer A", Type: "washer", HourlyCost: 4.50},
		{
			ID: 2, Name: "Washer B", Type: "washer", HourlyCost: 4.50,
			UserID: &userID, EndTime: &endTime, TimeLeft: &timeLeft,
		},
		{ID: 3, Name: "Dryer A", Type: "dryer", HourlyCost: 3.00},
	}
}
