package sensors

import (
	"math"
	"strconv"
	"strings"

	"codeberg.org/mutker/tufctl/internal/device"
	"codeberg.org/mutker/tufctl/internal/errors"
)

// Counters is a snapshot of the aggregate cpu line of /proc/stat, reduced
// to the idle column and the sum of all columns.
type Counters struct {
	Idle  uint64
	Total uint64
}

// CPUSampler takes counter snapshots; utilization is derived from the
// delta between two snapshots taken across a sampling window.
type CPUSampler struct {
	files *device.Files
	path  string
}

func NewCPUSampler(files *device.Files, path string) *CPUSampler {
	return &CPUSampler{
		files: files,
		path:  path,
	}
}

func (c *CPUSampler) Sample() (Counters, error) {
	content, err := c.files.Read(c.path)
	if err != nil {
		return Counters{}, err
	}

	return parseCounters(content)
}

func parseCounters(content string) (Counters, error) {
	errFactory := errors.New()

	line, _, _ := strings.Cut(content, "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return Counters{}, errFactory.WithData(ErrMalformedStat, line)
	}

	var counters Counters
	for i, field := range fields[1:] {
		value, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return Counters{}, errFactory.Wrap(ErrMalformedStat, err)
		}
		counters.Total += value
		if i == 3 {
			counters.Idle = value
		}
	}

	return counters, nil
}

// Utilization converts two counter snapshots into the busy percentage over
// the interval between them. A non-positive total delta reports 0 instead
// of dividing by zero.
func Utilization(prev, cur Counters) int {
	if cur.Total <= prev.Total || cur.Idle < prev.Idle {
		return 0
	}

	idleDelta := float64(cur.Idle - prev.Idle)
	totalDelta := float64(cur.Total - prev.Total)
	percent := int(math.Round((1 - idleDelta/totalDelta) * 100))

	return clamp(percent, 0, 100)
}
