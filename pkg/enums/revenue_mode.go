package enums

import "fmt"

// RevenueMode selects whether refunds are netted out of revenue.
type RevenueMode string

const (
	RevenueModeGross RevenueMode = "gross"
	RevenueModeNet   RevenueMode = "net"
)

// ParseRevenueMode converts raw input into a RevenueMode, defaulting to gross.
func ParseRevenueMode(value string) (RevenueMode, error) {
	switch RevenueMode(value) {
	case "":
		return RevenueModeGross, nil
	case RevenueModeGross, RevenueModeNet:
		return RevenueMode(value), nil
	}
	return "", fmt.Errorf("invalid revenue mode %q", value)
}
