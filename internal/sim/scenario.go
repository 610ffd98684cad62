// Package sim generates synthetic MOC traffic for load and demo runs.
package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/moc"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
)

// Change is one synthetic request: the draft to create, the assessment to
// attach and the statuses to walk it through afterwards.
type Change struct {
	Draft       moc.Draft
	Probability int
	Severity    int
	Mitigation  string
	Walk        []moc.Status
}

// Scenario is the pool a Generator draws from.
type Scenario struct {
	Name        string
	Facilities  []string
	Titles      []string
	Mitigations []string
}

// OffshoreScenario matches the demo facilities.
func OffshoreScenario() Scenario {
	return Scenario{
		Name:       "OffshoreBasin",
		Facilities: []string{"1", "2", "3"},
		Titles: []string{
			"Replace PSV on separator V-101",
			"Temporary bypass of gas detector loop",
			"Upgrade ESD logic solver firmware",
			"Change corrosion inhibitor supplier",
			"Relocate firewater hose reel",
			"Install spool for produced water reinjection",
		},
		Mitigations: []string{
			"Permit to work with gas testing",
			"Double block and bleed isolation",
			"Temporary fire watch during hot work",
			"Independent verification of setpoints",
		},
	}
}

// Generator draws changes from a scenario. It is safe for concurrent use.
type Generator struct {
	scenario Scenario
	mu       sync.Mutex
	rnd      *rand.Rand
}

// NewGenerator seeds a generator; seed 0 uses the clock.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{scenario: OffshoreScenario(), rnd: rand.New(rand.NewSource(seed))}
}

var types = []moc.Type{moc.TypeRoutine, moc.TypeMajor, moc.TypeEmergency}

// walks are the lifecycle paths a generated change may follow.
var walks = [][]moc.Status{
	{moc.StatusSubmitted},
	{moc.StatusSubmitted, moc.StatusUnderEvaluation},
	{moc.StatusSubmitted, moc.StatusUnderEvaluation, moc.StatusUnderReview, moc.StatusApproved},
	{moc.StatusSubmitted, moc.StatusRejected},
}

func (g *Generator) NextChange() Change {
	g.mu.Lock()
	defer g.mu.Unlock()
	sc := g.scenario
	return Change{
		Draft: moc.Draft{
			Title:         sc.Titles[g.rnd.Intn(len(sc.Titles))],
			Type:          string(types[g.rnd.Intn(len(types))]),
			FacilityID:    sc.Facilities[g.rnd.Intn(len(sc.Facilities))],
			Justification: "Synthetic load for " + sc.Name,
		},
		Probability: risk.MinLevel + g.rnd.Intn(risk.MaxLevel),
		Severity:    risk.MinLevel + g.rnd.Intn(risk.MaxLevel),
		Mitigation:  sc.Mitigations[g.rnd.Intn(len(sc.Mitigations))],
		Walk:        walks[g.rnd.Intn(len(walks))],
	}
}
