package basin

import "math"

// DepthStats summarizes the depth distribution of a basin.
type DepthStats struct {
	Nodes    int     `json:"nodes"`
	Max      int     `json:"max"`
	Mean     float64 `json:"mean"`
	P50      int     `json:"p50"`
	P90      int     `json:"p90"`
	P99      int     `json:"p99"`
	Skewness float64 `json:"skewness"`
}

// Stats computes the depth distribution over every page of the basin,
// terminal members included. Percentiles use the nearest-rank method;
// skewness is the population moment coefficient and 0 for a constant
// distribution.
func (b *Basin) Stats() DepthStats {
	return statsFromHistogram(b.Histogram())
}

func statsFromHistogram(h []int) DepthStats {
	var st DepthStats
	var sum float64
	for d, c := range h {
		st.Nodes += c
		sum += float64(d * c)
	}
	if st.Nodes == 0 {
		return st
	}
	st.Max = len(h) - 1
	st.Mean = sum / float64(st.Nodes)

	var m2, m3 float64
	for d, c := range h {
		dev := float64(d) - st.Mean
		m2 += float64(c) * dev * dev
		m3 += float64(c) * dev * dev * dev
	}
	m2 /= float64(st.Nodes)
	m3 /= float64(st.Nodes)
	if m2 > 0 {
		st.Skewness = m3 / math.Pow(m2, 1.5)
	}

	st.P50 = percentile(h, st.Nodes, 0.50)
	st.P90 = percentile(h, st.Nodes, 0.90)
	st.P99 = percentile(h, st.Nodes, 0.99)
	return st
}

func percentile(h []int, total int, p float64) int {
	rank := int(math.Ceil(p * float64(total)))
	if rank < 1 {
		rank = 1
	}
	seen := 0
	for d, c := range h {
		seen += c
		if seen >= rank {
			return d
		}
	}
	return len(h) - 1
}
