package routing

import "sort"

// unrankedPriority sorts environments missing from the rank table after every
// configured one.
const unrankedPriority = 1 << 30

// Ranker orders recipients by environment priority. The rank table is
// deployment configuration; lower rank wins.
type Ranker struct {
	ranks map[string]int
}

func NewRanker(ranks map[string]int) *Ranker {
	if ranks == nil {
		ranks = map[string]int{}
	}
	return &Ranker{ranks: ranks}
}

// Rank returns the priority rank for an environment name. Unknown
// environments rank lowest.
func (r *Ranker) Rank(environment string) int {
	if rank, ok := r.ranks[environment]; ok {
		return rank
	}
	return unrankedPriority
}

// Sort orders recipients by (environment rank ascending, domain ascending).
func (r *Ranker) Sort(recipients []Recipient) {
	sort.SliceStable(recipients, func(i, j int) bool {
		ri, rj := r.Rank(recipients[i].Environment), r.Rank(recipients[j].Environment)
		if ri != rj {
			return ri < rj
		}
		return recipients[i].Domain < recipients[j].Domain
	})
}
