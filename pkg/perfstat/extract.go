package perfstat

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethpandaops/perfpipe/pkg/metric"
)

// Sample is one record of `perf stat -x,` output.
type Sample struct {
	Value       string
	Unit        string
	Event       string
	RunTime     string
	Utilization string
	Derived     string
	Label       string
}

// ReadDump parses perf's CSV output. Comment lines, blank lines and records
// with fewer than three fields (no event name) are skipped.
func ReadDump(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var samples []Sample

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading perf output: %w", err)
		}

		if len(rec) < 3 {
			continue
		}

		fields := make([]string, 7)
		copy(fields, rec)

		samples = append(samples, Sample{
			Value:       strings.TrimSpace(fields[0]),
			Unit:        fields[1],
			Event:       strings.TrimSpace(fields[2]),
			RunTime:     fields[3],
			Utilization: fields[4],
			Derived:     fields[5],
			Label:       fields[6],
		})
	}

	return samples, nil
}

// ReadDumpFile is ReadDump over a file path.
func ReadDumpFile(path string) ([]Sample, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("opening perf output: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadDump(f)
}

// Extract selects the tracked events in one pass and returns a value for
// every tracked counter. Values that do not parse as numbers, such as
// "<not supported>", and counters absent from the samples are Unavailable.
// When an event appears more than once the last sample wins.
func Extract(samples []Sample) Counters {
	counters := make(Counters, len(tracked)+3)
	for _, t := range tracked {
		counters[t.key] = metric.Unavailable
	}

	for _, s := range samples {
		key, ok := eventKeys[s.Event]
		if !ok {
			continue
		}

		counters[key] = metric.Parse(s.Value)
	}

	return counters
}
