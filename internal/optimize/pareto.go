package optimize

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
)

type individual struct {
	doses   []float64
	fitness []float64 // all objectives minimized internally
	rank    int
	crowd   float64
}

// OptimizeParetoFrontier runs an NSGA-II style population search over the
// dose space for several objectives at once. Objectives that should be
// maximized are negated internally so the whole fitness vector is minimized.
// Metrics without trained models are dropped from the objective set; fewer
// than two usable objectives yields an empty result rather than an error.
func OptimizeParetoFrontier(state *TrainedState, objectives []core.MetricKey, cfg Config) MultiObjectiveResult {
	if len(objectives) == 0 {
		objectives = sleep.DefaultObjectives
	}
	var usable []core.MetricKey
	for _, m := range objectives {
		if state.HasModel(m) {
			usable = append(usable, m)
		}
	}
	names := make([]string, len(usable))
	for i, m := range usable {
		names[i] = string(m)
	}
	if !state.Trained() || len(usable) < 2 {
		return MultiObjectiveResult{
			ObjectiveNames: names,
			Recommendation: "not enough trained objectives for a frontier search; more history is needed",
		}
	}

	popSize := cfg.Population
	if popSize < 4 {
		popSize = 60
	}
	generations := cfg.Generations
	if generations <= 0 {
		generations = 40
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	bounds := make([]float64, len(state.Medications))
	for j, med := range state.Medications {
		bounds[j] = state.Stats[med].MaxMg * doseBoundFactor
	}

	evaluate := func(ind *individual) {
		ind.fitness = make([]float64, len(usable))
		for k, metric := range usable {
			_, median, _, _ := state.predictBand(metric, ind.doses)
			if sleep.LowerIsBetter(metric) {
				ind.fitness[k] = median
			} else {
				ind.fitness[k] = -median
			}
		}
	}

	pop := make([]*individual, popSize)
	for i := range pop {
		doses := make([]float64, len(bounds))
		for j, b := range bounds {
			if rng.Float64() < zeroDoseProbability {
				continue
			}
			doses[j] = rng.Float64() * b
		}
		pop[i] = &individual{doses: doses}
		evaluate(pop[i])
	}

	for gen := 0; gen < generations; gen++ {
		assignRanks(pop)

		offspring := make([]*individual, 0, popSize)
		for len(offspring) < popSize {
			p1 := tournament(pop, rng)
			p2 := tournament(pop, rng)
			child := crossover(p1, p2, rng)
			mutate(child, bounds, rng)
			evaluate(child)
			offspring = append(offspring, child)
		}

		// mu+lambda survival: best ranks with crowding as tie-break.
		combined := append(pop, offspring...)
		assignRanks(combined)
		sort.SliceStable(combined, func(i, j int) bool {
			if combined[i].rank != combined[j].rank {
				return combined[i].rank < combined[j].rank
			}
			return combined[i].crowd > combined[j].crowd
		})
		pop = combined[:popSize]
	}

	assignRanks(pop)
	frontier := dedupeFrontier(firstFront(pop))
	if len(frontier) > frontierCap {
		frontier = frontier[:frontierCap]
	}

	solutions := make([]ParetoSolution, 0, len(frontier))
	for _, ind := range frontier {
		solutions = append(solutions, buildSolution(state, usable, ind))
	}

	return MultiObjectiveResult{
		ParetoFrontier: solutions,
		ObjectiveNames: names,
		Recommendation: frontierRecommendation(solutions),
	}
}

// assignRanks performs fast non-dominated sorting plus crowding distances.
func assignRanks(pop []*individual) {
	n := len(pop)
	dominatedBy := make([][]int, n)
	dominationCount := make([]int, n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if dominates(pop[i], pop[j]) {
				dominatedBy[i] = append(dominatedBy[i], j)
			} else if dominates(pop[j], pop[i]) {
				dominationCount[i]++
			}
		}
	}

	var current []int
	for i := 0; i < n; i++ {
		if dominationCount[i] == 0 {
			pop[i].rank = 0
			current = append(current, i)
		}
	}
	rank := 0
	for len(current) > 0 {
		var next []int
		for _, i := range current {
			for _, j := range dominatedBy[i] {
				dominationCount[j]--
				if dominationCount[j] == 0 {
					pop[j].rank = rank + 1
					next = append(next, j)
				}
			}
		}
		crowdingDistances(pop, current)
		current = next
		rank++
	}
}

func dominates(a, b *individual) bool {
	better := false
	for k := range a.fitness {
		if a.fitness[k] > b.fitness[k] {
			return false
		}
		if a.fitness[k] < b.fitness[k] {
			better = true
		}
	}
	return better
}

func crowdingDistances(pop []*individual, front []int) {
	for _, i := range front {
		pop[i].crowd = 0
	}
	if len(front) < 3 {
		for _, i := range front {
			pop[i].crowd = math.Inf(1)
		}
		return
	}
	nObj := len(pop[front[0]].fitness)
	for k := 0; k < nObj; k++ {
		sorted := make([]int, len(front))
		copy(sorted, front)
		sort.SliceStable(sorted, func(a, b int) bool {
			return pop[sorted[a]].fitness[k] < pop[sorted[b]].fitness[k]
		})
		lo := pop[sorted[0]].fitness[k]
		hi := pop[sorted[len(sorted)-1]].fitness[k]
		pop[sorted[0]].crowd = math.Inf(1)
		pop[sorted[len(sorted)-1]].crowd = math.Inf(1)
		if hi == lo {
			continue
		}
		for idx := 1; idx < len(sorted)-1; idx++ {
			gap := pop[sorted[idx+1]].fitness[k] - pop[sorted[idx-1]].fitness[k]
			pop[sorted[idx]].crowd += gap / (hi - lo)
		}
	}
}

func tournament(pop []*individual, rng *rand.Rand) *individual {
	a := pop[rng.Intn(len(pop))]
	b := pop[rng.Intn(len(pop))]
	if a.rank != b.rank {
		if a.rank < b.rank {
			return a
		}
		return b
	}
	if a.crowd > b.crowd {
		return a
	}
	return b
}

// crossover blends each gene uniformly between the two parents.
func crossover(p1, p2 *individual, rng *rand.Rand) *individual {
	doses := make([]float64, len(p1.doses))
	for j := range doses {
		u := rng.Float64()
		doses[j] = p1.doses[j] + u*(p2.doses[j]-p1.doses[j])
	}
	return &individual{doses: doses}
}

// mutate perturbs roughly one gene per child and occasionally zeroes a dose,
// keeping the no-medication option reachable throughout the search.
func mutate(ind *individual, bounds []float64, rng *rand.Rand) {
	prob := 1.0 / float64(len(ind.doses))
	for j, b := range bounds {
		if rng.Float64() >= prob {
			continue
		}
		if rng.Float64() < 0.2 {
			ind.doses[j] = 0
			continue
		}
		ind.doses[j] += rng.NormFloat64() * 0.1 * b
		if ind.doses[j] < 0 {
			ind.doses[j] = 0
		}
		if ind.doses[j] > b {
			ind.doses[j] = b
		}
	}
}

func firstFront(pop []*individual) []*individual {
	var front []*individual
	for _, ind := range pop {
		if ind.rank == 0 {
			front = append(front, ind)
		}
	}
	sort.SliceStable(front, func(i, j int) bool { return front[i].crowd > front[j].crowd })
	return front
}

// dedupeFrontier collapses solutions whose dose vectors round to the same
// configuration.
func dedupeFrontier(front []*individual) []*individual {
	seen := make(map[string]bool)
	var out []*individual
	for _, ind := range front {
		var b strings.Builder
		for _, d := range ind.doses {
			fmt.Fprintf(&b, "%.1f|", d)
		}
		key := b.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ind)
	}
	return out
}

func buildSolution(state *TrainedState, objectives []core.MetricKey, ind *individual) ParetoSolution {
	objValues := make(map[string]float64, len(objectives))
	confidence := 0.0
	for _, metric := range objectives {
		lower, median, upper, _ := state.predictBand(metric, ind.doses)
		objValues[string(metric)] = round2(median)
		confidence += state.bandConfidence(metric, lower, upper)
	}
	confidence /= float64(len(objectives))

	suggestions := suggestionsForVector(state, objectives, ind.doses, confidence)

	return ParetoSolution{
		Medications: suggestions,
		Objectives:  objValues,
		TradeOff:    tradeOffDescription(objValues),
	}
}

// suggestionsForVector reports dosed medications above the significance
// threshold with impact measured against the first objective.
func suggestionsForVector(state *TrainedState, objectives []core.MetricKey, doses []float64, confidence float64) []Suggestion {
	primary := objectives[0]
	_, prediction, _, _ := state.predictBand(primary, doses)
	suggestions := suggestionsFor(state, primary, doses, prediction, confidence)
	sortSuggestions(suggestions, sleep.LowerIsBetter(primary))
	return suggestions
}

// tradeOffDescription contrasts the deep-sleep and REM emphasis of a
// solution and classifies its sleep-onset speed.
func tradeOffDescription(objectives map[string]float64) string {
	var parts []string

	deep, hasDeep := objectives[string(sleep.DeepSleepMinutes)]
	rem, hasRem := objectives[string(sleep.RemSleepMinutes)]
	if hasDeep && hasRem {
		switch {
		case deep > rem*1.2:
			parts = append(parts, "favors deep sleep over REM")
		case rem > deep*1.2:
			parts = append(parts, "favors REM over deep sleep")
		default:
			parts = append(parts, "balances deep sleep and REM")
		}
	}

	if latency, ok := objectives[string(sleep.LatencyMinutes)]; ok {
		switch {
		case latency < fastOnsetMinutes:
			parts = append(parts, "fast sleep onset")
		case latency > slowOnsetMinutes:
			parts = append(parts, "slow sleep onset")
		default:
			parts = append(parts, "moderate sleep onset")
		}
	}

	if len(parts) == 0 {
		return "balanced configuration"
	}
	return strings.Join(parts, ", ")
}

func frontierRecommendation(solutions []ParetoSolution) string {
	if len(solutions) == 0 {
		return "no non-dominated configurations found; continue tracking to build more data"
	}
	return fmt.Sprintf("%d trade-off configurations found; pick by whether deep sleep, REM, or fast onset matters most tonight", len(solutions))
}
