package service

import (
	"fmt"
	"sort"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/pkg/cpsat"
)

// modelMode selects which objective and demand shape a phase builds.
type modelMode int

const (
	// modeAllConstraints adds the slot-count objective on top of the hard constraints.
	modeAllConstraints modelMode = iota
	// modeHardOnly keeps only the hard constraints.
	modeHardOnly
	// modePartial lets a student be left out entirely and maximises weighted placements.
	modePartial
)

type assignment struct {
	slot int
	lit  cpsat.Literal
}

// placementModel is the boolean model of one phase: one literal per (residual student, candidate slot)
// where the student is available.
type placementModel struct {
	model    *cpsat.Model
	students []residualStudent
	slots    []models.Slot
	assign   [][]assignment
	bySlot   [][]cpsat.Literal
	used     []cpsat.Literal
	placed   []cpsat.Literal
	links    int
}

type modelLimits struct {
	minSize    int
	maxSize    int
	softWeight int
}

func buildPlacementModel(students []residualStudent, slots []models.Slot, skeleton map[models.SlotKey]models.ScheduledClass, mode modelMode, limits modelLimits) *placementModel {
	pm := &placementModel{
		model:    cpsat.NewModel(),
		students: students,
		slots:    slots,
		assign:   make([][]assignment, len(students)),
		bySlot:   make([][]cpsat.Literal, len(slots)),
		used:     make([]cpsat.Literal, len(slots)),
	}

	slotIndex := make(map[models.SlotKey]int, len(slots))
	for j, slot := range slots {
		slotIndex[slot.Key()] = j
	}
	for i, student := range students {
		seen := make(map[int]struct{})
		for _, slot := range student.Available {
			j, ok := slotIndex[slot.Key()]
			if !ok {
				continue
			}
			if _, dup := seen[j]; dup {
				continue
			}
			seen[j] = struct{}{}
			lit := pm.model.NewBool(fmt.Sprintf("%s@%s", student.Name, slots[j].Label()))
			pm.assign[i] = append(pm.assign[i], assignment{slot: j, lit: lit})
			pm.bySlot[j] = append(pm.bySlot[j], lit)
		}
	}

	pm.addDemand(mode)
	pm.addCapacity(limits)
	pm.addExclusivity(skeleton)
	pm.addLinks(mode)

	switch mode {
	case modeAllConstraints:
		terms := make([]cpsat.Term, 0, len(pm.used))
		for _, used := range pm.used {
			terms = append(terms, cpsat.Term{Lit: used, Weight: limits.softWeight})
		}
		pm.model.Minimize(terms...)
	case modePartial:
		terms := make([]cpsat.Term, 0, len(pm.placed))
		for i, placed := range pm.placed {
			terms = append(terms, cpsat.Term{Lit: placed, Weight: students[i].Residual})
		}
		pm.model.Maximize(terms...)
	}
	return pm
}

func (pm *placementModel) literals(i int) []cpsat.Literal {
	lits := make([]cpsat.Literal, len(pm.assign[i]))
	for k, a := range pm.assign[i] {
		lits[k] = a.lit
	}
	return lits
}

func (pm *placementModel) addDemand(mode modelMode) {
	if mode == modePartial {
		pm.placed = make([]cpsat.Literal, len(pm.students))
	}
	for i, student := range pm.students {
		lits := pm.literals(i)
		if mode != modePartial {
			pm.model.AddExactly(lits, student.Residual)
			continue
		}
		placed := pm.model.NewBool("placed:" + student.Name)
		pm.placed[i] = placed
		pm.model.AddExactly(lits, student.Residual).OnlyEnforceIf(placed)
		pm.model.AddExactly(lits, 0).OnlyEnforceIf(placed.Not())
	}
}

func (pm *placementModel) addCapacity(limits modelLimits) {
	for j, lits := range pm.bySlot {
		used := pm.model.NewBool("used:" + pm.slots[j].Label())
		pm.used[j] = used
		pm.model.AddAtLeast(lits, 1).OnlyEnforceIf(used)
		pm.model.AddExactly(lits, 0).OnlyEnforceIf(used.Not())
		pm.model.AddLinearRange(lits, limits.minSize, limits.maxSize).OnlyEnforceIf(used)
	}
}

func (pm *placementModel) addExclusivity(skeleton map[models.SlotKey]models.ScheduledClass) {
	for _, pair := range overlappingPairs(pm.slots) {
		pm.model.AddAtMost([]cpsat.Literal{pm.used[pair[0]], pm.used[pair[1]]}, 1)
	}
	for j, slot := range pm.slots {
		for key := range skeleton {
			if slot.Overlaps(key.Slot()) {
				pm.model.AddExactly([]cpsat.Literal{pm.used[j]}, 0)
				break
			}
		}
	}
}

// addLinks requires reciprocally linked residual students to share at least min(residuals) lessons.
func (pm *placementModel) addLinks(mode modelMode) {
	index := make(map[string]int, len(pm.students))
	for i, student := range pm.students {
		index[student.Name] = i
	}
	for a, student := range pm.students {
		if !student.IsLinked() {
			continue
		}
		b, ok := index[student.LinkedWith]
		if !ok || b <= a || pm.students[b].LinkedWith != student.Name {
			continue
		}
		partnerSlots := make(map[int]cpsat.Literal, len(pm.assign[b]))
		for _, asg := range pm.assign[b] {
			partnerSlots[asg.slot] = asg.lit
		}
		var together []cpsat.Literal
		for _, asg := range pm.assign[a] {
			partner, shared := partnerSlots[asg.slot]
			if !shared {
				continue
			}
			both := pm.model.NewBool(fmt.Sprintf("together:%s+%s@%s", student.Name, pm.students[b].Name, pm.slots[asg.slot].Label()))
			pm.model.AddProduct(both, asg.lit, partner)
			together = append(together, both)
		}
		need := student.Residual
		if pm.students[b].Residual < need {
			need = pm.students[b].Residual
		}
		c := pm.model.AddAtLeast(together, need)
		if mode == modePartial {
			c.OnlyEnforceIf(pm.placed[a], pm.placed[b])
		}
		pm.links++
	}
}

// classes groups the solver's true assignments into proposed classes, in slot order.
func (pm *placementModel) classes(resp *cpsat.Response) ([]models.ScheduledClass, map[string]int) {
	counts := make(map[string]int)
	attendees := make([][]string, len(pm.slots))
	for i, student := range pm.students {
		for _, asg := range pm.assign[i] {
			if resp.Value(asg.lit) {
				attendees[asg.slot] = append(attendees[asg.slot], student.Name)
				counts[student.Name]++
			}
		}
	}
	var out []models.ScheduledClass
	for j, names := range attendees {
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		out = append(out, models.ScheduledClass{Slot: pm.slots[j], Students: names, Status: models.ClassStatusProposed})
	}
	return out, counts
}
