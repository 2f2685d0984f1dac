package usecase

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/pricelab/cfb-market/internal/domain/feature"
	"github.com/pricelab/cfb-market/internal/domain/team"
)

const (
	winsorLowQuantile  = 0.01
	winsorHighQuantile = 0.99
	minVariance        = 1e-9
)

type metricSetSelector struct {
	name string
	pick func(*feature.TeamGame) *feature.MetricSet
}

var metricSetSelectors = []metricSetSelector{
	{"adj_off", func(r *feature.TeamGame) *feature.MetricSet { return &r.AdjOffense }},
	{"adj_def", func(r *feature.TeamGame) *feature.MetricSet { return &r.AdjDefense }},
	{"edge", func(r *feature.TeamGame) *feature.MetricSet { return &r.Edge }},
	{"recency3", func(r *feature.TeamGame) *feature.MetricSet { return &r.Recency3 }},
	{"recency5", func(r *feature.TeamGame) *feature.MetricSet { return &r.Recency5 }},
}

func familyField(ms *feature.MetricSet, family string) **float64 {
	switch family {
	case "epa":
		return &ms.EPA
	case "success_rate":
		return &ms.SuccessRate
	case "explosiveness":
		return &ms.Explosiveness
	case "points_per_opp":
		return &ms.PointsPerOpp
	case "havoc":
		return &ms.Havoc
	default:
		return nil
	}
}

// recencyPriors maps team and metric family to the talent-implied edge used
// when a recency window is short on real games.
type recencyPriors struct {
	byTeam map[string]map[string]*float64
}

func (p recencyPriors) get(teamID, family string) *float64 {
	if p.byTeam == nil {
		return nil
	}
	if m, ok := p.byTeam[teamID]; ok {
		return m[family]
	}
	return nil
}

// talentPriors places each team's preseason talent on the batch's edge scale:
// a one-sigma talent team gets a one-sigma edge prior. Teams without a talent
// composite sit at the batch mean.
func talentPriors(rows map[teamGameKey]*feature.TeamGame, logs map[string][]logEntry, teamByID map[string]team.Team) recencyPriors {
	edgeByFamily := make(map[string][]float64, len(metricFamilies))
	for _, row := range rows {
		for _, family := range metricFamilies {
			if v := *familyField(&row.Edge, family); v != nil {
				edgeByFamily[family] = append(edgeByFamily[family], *v)
			}
		}
	}

	var talents []float64
	for teamID := range logs {
		if t, ok := teamByID[teamID]; ok && t.Talent != nil {
			talents = append(talents, *t.Talent)
		}
	}
	talentMean, talentStd := 0.0, 0.0
	if len(talents) > 1 {
		talentMean, talentStd = stat.MeanStdDev(talents, nil)
	}

	priors := recencyPriors{byTeam: make(map[string]map[string]*float64, len(logs))}
	for teamID := range logs {
		z := 0.0
		if t, ok := teamByID[teamID]; ok && t.Talent != nil && talentStd > minVariance {
			z = (*t.Talent - talentMean) / talentStd
		}
		byFamily := make(map[string]*float64, len(metricFamilies))
		for _, family := range metricFamilies {
			values := edgeByFamily[family]
			if len(values) == 0 {
				byFamily[family] = nil
				continue
			}
			mean, std := stat.MeanStdDev(values, nil)
			if math.IsNaN(std) {
				std = 0
			}
			prior := mean + z*std
			byFamily[family] = &prior
		}
		priors.byTeam[teamID] = byFamily
	}
	return priors
}

// attachRecency computes the 3- and 5-game EWMAs of each team's edge over
// strictly prior games, blending the missing window mass into the talent
// prior and flagging short windows.
func attachRecency(rows map[teamGameKey]*feature.TeamGame, logs map[string][]logEntry, priors recencyPriors) {
	for teamID, entries := range logs {
		for _, entry := range entries {
			row, ok := rows[teamGameKey{gameID: entry.game.ID, teamID: teamID}]
			if !ok {
				continue
			}

			prior := priorSlice(entries, entry.seq)
			for _, family := range metricFamilies {
				values := recentEdgeValues(rows, prior, teamID, family, len(recencyWeights5))
				talent := priors.get(teamID, family)

				v3, low3 := ewma(values, recencyWeights3, talent)
				v5, low5 := ewma(values, recencyWeights5, talent)
				*familyField(&row.Recency3, family) = v3
				*familyField(&row.Recency5, family) = v5
				if low3 {
					row.LowSample3 = true
				}
				if low5 {
					row.LowSample5 = true
				}
			}
		}
	}
}

// recentEdgeValues walks a team's prior log most-recent-first and collects up
// to limit non-nil edge observations for one metric family.
func recentEdgeValues(rows map[teamGameKey]*feature.TeamGame, prior []logEntry, teamID, family string, limit int) []float64 {
	values := make([]float64, 0, limit)
	for i := len(prior) - 1; i >= 0 && len(values) < limit; i-- {
		row, ok := rows[teamGameKey{gameID: prior[i].game.ID, teamID: teamID}]
		if !ok {
			continue
		}
		if v := *familyField(&row.Edge, family); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

// ewma applies a fixed most-recent-first weight vector. When fewer values
// than weights exist, the leftover weight mass goes to the prior; with no
// prior available the used weights are renormalized instead.
func ewma(values, weights []float64, prior *float64) (*float64, bool) {
	m := len(values)
	if m > len(weights) {
		m = len(weights)
	}

	var acc, used float64
	for i := 0; i < m; i++ {
		acc += weights[i] * values[i]
		used += weights[i]
	}
	if m == len(weights) {
		return &acc, false
	}

	if prior != nil {
		v := acc + (1-used)**prior
		return &v, true
	}
	if m == 0 {
		return nil, true
	}
	v := acc / used
	return &v, true
}

// applyHygiene winsorizes every feature column at the 1st/99th percentile
// and standardizes it within the batch. Zero-variance columns go null and
// are flagged on each affected row instead of dividing by zero.
func applyHygiene(rows map[teamGameKey]*feature.TeamGame) {
	for _, selector := range metricSetSelectors {
		for _, family := range metricFamilies {
			column := selector.name + "_" + family

			var cells []**float64
			var values []float64
			for _, row := range rows {
				cell := familyField(selector.pick(row), family)
				if *cell == nil {
					continue
				}
				cells = append(cells, cell)
				values = append(values, **cell)
			}
			if len(values) == 0 {
				continue
			}

			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)
			lo := stat.Quantile(winsorLowQuantile, stat.Empirical, sorted, nil)
			hi := stat.Quantile(winsorHighQuantile, stat.Empirical, sorted, nil)
			for i := range values {
				values[i] = clamp(values[i], lo, hi)
			}

			mean, std := stat.MeanStdDev(values, nil)
			if math.IsNaN(std) || std < minVariance {
				for _, row := range rows {
					cell := familyField(selector.pick(row), family)
					if *cell == nil {
						continue
					}
					*cell = nil
					row.Degenerate = append(row.Degenerate, column)
				}
				continue
			}

			for i, cell := range cells {
				standardized := (values[i] - mean) / std
				**cell = standardized
			}
		}
	}
}
