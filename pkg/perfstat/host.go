package perfstat

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/sirupsen/logrus"
)

// Host describes the machine that produced a counter dump. Counter
// availability depends on the CPU, so it is logged next to extraction gaps.
type Host struct {
	ModelName    string
	VendorID     string
	LogicalCores int
	Arch         string
	Platform     string
	Kernel       string
}

// DescribeHost collects CPU and OS details.
func DescribeHost(ctx context.Context) (*Host, error) {
	h := &Host{}

	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading cpu info: %w", err)
	}

	if len(infos) > 0 {
		h.ModelName = infos[0].ModelName
		h.VendorID = infos[0].VendorID
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("counting cpus: %w", err)
	}

	h.LogicalCores = cores

	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	h.Arch = hi.KernelArch
	h.Platform = hi.Platform
	h.Kernel = hi.KernelVersion

	return h, nil
}

// LogUnavailable logs which tracked counters could not be measured on this
// host. It is a no-op when every counter is available.
func LogUnavailable(ctx context.Context, log logrus.FieldLogger, counters Counters) {
	missing, events := Unavailable(counters)
	if len(missing) == 0 {
		return
	}

	fields := logrus.Fields{"counters": missing}
	if len(events) > 0 {
		fields["events"] = events
	}

	if h, err := DescribeHost(ctx); err == nil {
		fields["cpu"] = h.ModelName
		fields["arch"] = h.Arch
		fields["cores"] = h.LogicalCores
	} else {
		log.WithError(err).Debug("Failed to describe host")
	}

	log.WithFields(fields).Info("Counters unavailable on this host")
}

// Unavailable returns the tracked counter keys without a value and the perf
// events behind them. Counters with no portable event have no event entry.
func Unavailable(counters Counters) (keys, events []string) {
	for _, key := range TrackedKeys() {
		if counters.Get(key).Available() {
			continue
		}

		keys = append(keys, key)

		if event, ok := EventFor(key); ok {
			events = append(events, event)
		}
	}

	return keys, events
}
