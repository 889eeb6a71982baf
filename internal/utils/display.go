package utils

import (
	"fmt"
	"time"
)

type unit struct {
	scale  float64
	suffix string
}

var (
	decimalUnits = []unit{{1e9, "GB"}, {1e6, "MB"}, {1e3, "KB"}}
	binaryUnits  = []unit{{1 << 30, "GiB"}, {1 << 20, "MiB"}, {1 << 10, "KiB"}}
	rateUnits    = []unit{{1e9, "GBPS"}, {1e6, "MBPS"}, {1e3, "KBPS"}}
)

func scaled(v float64, units []unit, base string) string {
	for _, u := range units {
		if v >= u.scale {
			return fmt.Sprintf("%.2f %s", v/u.scale, u.suffix)
		}
	}
	return fmt.Sprintf("%.0f %s", v, base)
}

// DisplayBPS formats the bit rate of bytes moved over duration
func DisplayBPS(bytes uint64, duration time.Duration) string {
	if duration <= 0 {
		return "0 BPS"
	}
	return scaled(float64(bytes)/duration.Seconds()*8, rateUnits, "BPS")
}

func DisplayB(bytes uint64) string {
	return scaled(float64(bytes), decimalUnits, "B")
}

func DisplayBi(bytes uint64) string {
	return scaled(float64(bytes), binaryUnits, "B")
}
