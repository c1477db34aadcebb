package stats

import (
	"encoding/xml"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"
)

// Timings records how long each step of a pass took, in seconds.
type Timings map[string]float64

// TimeStep runs fn and records its wall time under name, whether or not it fails.
func TimeStep[T any](timings Timings, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	timings[name] = time.Since(start).Seconds()
	return v, err
}

func (t Timings) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	keys := lo.Keys(t)
	sort.Strings(keys)
	return encodeEntries(e, start, keys, func(k string) string {
		return strconv.FormatFloat(t[k], 'f', 6, 64)
	})
}
