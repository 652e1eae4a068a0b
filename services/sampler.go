package services

import (
	"log"
	"math"
	"math/rand"
	"sort"
	"sync"

	"skillgauge/models"
)

// QuotaSampler turns a round's quotas into a concrete, shuffled list of question IDs.
type QuotaSampler interface {
	// Sample draws from pool according to round's quotas. Subcategories whose pool cannot cover
	// their target are reported as shortfalls; they never cause an error.
	Sample(round *models.AssessmentRound, pool []models.Question) ([]uint, []models.PoolShortfall)
}

type quotaSampler struct {
	mu           sync.Mutex // guards rng
	rng          *rand.Rand
	redistribute bool
}

// NewQuotaSampler creates a sampler drawing from rng. When redistribute is set, a subcategory's
// shortfall is filled from the remaining questions of the other quota subcategories.
func NewQuotaSampler(rng *rand.Rand, redistribute bool) QuotaSampler {
	return &quotaSampler{rng: rng, redistribute: redistribute}
}

// TargetCounts converts quota percentages into per-subcategory question counts summing to total.
// Percentages are normalized by their sum; rounding drift is settled on the largest quota.
func TargetCounts(total int, quotas map[string]float64) map[string]int {
	counts := make(map[string]int)
	if total <= 0 {
		return counts
	}

	var sum float64
	order := make([]string, 0, len(quotas))
	for subcategory, p := range quotas {
		if p <= 0 {
			continue
		}
		sum += p
		order = append(order, subcategory)
	}
	if len(order) == 0 {
		return counts
	}
	// Largest quota first, ties by name.
	sort.Slice(order, func(i, j int) bool {
		if quotas[order[i]] != quotas[order[j]] {
			return quotas[order[i]] > quotas[order[j]]
		}
		return order[i] < order[j]
	})

	assigned := 0
	for _, subcategory := range order {
		n := int(math.Round(float64(total) * quotas[subcategory] / sum))
		counts[subcategory] = n
		assigned += n
	}

	drift := total - assigned
	if drift > 0 {
		counts[order[0]] += drift
	}
	for i := 0; drift < 0 && i < len(order); i++ {
		take := counts[order[i]]
		if take > -drift {
			take = -drift
		}
		counts[order[i]] -= take
		drift += take
	}
	return counts
}

func (s *quotaSampler) Sample(round *models.AssessmentRound, pool []models.Question) ([]uint, []models.PoolShortfall) {
	targets := TargetCounts(round.TotalQuestionCount, round.QuotaMap())

	bySubcategory := make(map[string][]uint)
	seen := make(map[uint]bool, len(pool))
	for _, q := range pool {
		if !q.Active || seen[q.ID] {
			continue
		}
		if _, quoted := targets[q.Subcategory]; !quoted {
			continue // not part of this round's quotas
		}
		seen[q.ID] = true
		bySubcategory[q.Subcategory] = append(bySubcategory[q.Subcategory], q.ID)
	}

	subcategories := make([]string, 0, len(targets))
	for subcategory := range targets {
		subcategories = append(subcategories, subcategory)
	}
	sort.Strings(subcategories)

	s.mu.Lock()
	defer s.mu.Unlock()

	selected := make([]uint, 0, round.TotalQuestionCount)
	var spare []uint
	var shortfalls []models.PoolShortfall
	deficit := 0

	for _, subcategory := range subcategories {
		target := targets[subcategory]
		candidates := bySubcategory[subcategory]
		drawn, rest := s.draw(candidates, target)
		selected = append(selected, drawn...)
		spare = append(spare, rest...)
		if len(drawn) < target {
			shortfalls = append(shortfalls, models.PoolShortfall{
				Subcategory: subcategory,
				Requested:   target,
				Available:   len(candidates),
			})
			deficit += target - len(drawn)
			log.Printf("WARN: [QuotaSampler] Round %d: subcategory '%s' needs %d questions but only %d are active.", round.ID, subcategory, target, len(candidates))
		}
	}

	if s.redistribute && deficit > 0 && len(spare) > 0 {
		extra, _ := s.draw(spare, deficit)
		selected = append(selected, extra...)
		remaining := len(extra)
		for i := range shortfalls {
			missing := shortfalls[i].Requested - shortfalls[i].Available
			if missing > remaining {
				missing = remaining
			}
			shortfalls[i].Redistributed = missing
			remaining -= missing
		}
		log.Printf("INFO: [QuotaSampler] Round %d: redistributed %d of %d missing questions.", round.ID, len(extra), deficit)
	}

	s.rng.Shuffle(len(selected), func(i, j int) { selected[i], selected[j] = selected[j], selected[i] })
	return selected, shortfalls
}

// draw picks n distinct IDs uniformly without replacement and returns them with the leftovers.
// The caller must hold s.mu.
func (s *quotaSampler) draw(ids []uint, n int) (drawn, rest []uint) {
	out := append([]uint(nil), ids...)
	if n > len(out) {
		n = len(out)
	}
	if n < 0 {
		n = 0
	}
	// Partial Fisher-Yates: the first n slots end up as a uniform sample.
	for i := 0; i < n; i++ {
		j := i + s.rng.Intn(len(out)-i)
		out[i], out[j] = out[j], out[i]
	}
	return out[:n], out[n:]
}
