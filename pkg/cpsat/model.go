// Package cpsat provides a small boolean constraint model (cardinality ranges with
// enforcement literals, AND products and a linear objective) and a SAT-backed solver for it.
package cpsat

import (
	"errors"
	"fmt"
	"time"
)

// Literal is a boolean variable (positive) or its negation (negative). Zero is never a valid literal.
type Literal int

// Not returns the negation of l.
func (l Literal) Not() Literal { return -l }

// Var returns the 1-based variable index of l.
func (l Literal) Var() int {
	if l < 0 {
		return int(-l)
	}
	return int(l)
}

// Unbounded marks a cardinality range without an upper limit.
const Unbounded = -1

// Constraint is a cardinality range lo <= sum(Lits) <= hi, applied only when every enforcement literal is true.
type Constraint struct {
	Lits    []Literal
	Lo      int
	Hi      int
	Enforce []Literal
}

// OnlyEnforceIf makes the constraint conditional on all given literals.
func (c *Constraint) OnlyEnforceIf(lits ...Literal) *Constraint {
	c.Enforce = append(c.Enforce, lits...)
	return c
}

// Product is Target <-> AND(Factors).
type Product struct {
	Target  Literal
	Factors []Literal
}

// Term is one weighted literal of the objective.
type Term struct {
	Lit    Literal
	Weight int
}

// Sense is the optimisation direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// Objective is a weighted sum of literals.
type Objective struct {
	Sense Sense
	Terms []Term
}

// Model accumulates variables and constraints. It is not safe for concurrent mutation.
type Model struct {
	names       []string
	constraints []*Constraint
	products    []Product
	objective   *Objective
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{}
}

// NewBool allocates a fresh boolean variable.
func (m *Model) NewBool(name string) Literal {
	m.names = append(m.names, name)
	return Literal(len(m.names))
}

// Name returns the debugging name given to the literal's variable.
func (m *Model) Name(l Literal) string {
	v := l.Var()
	if v < 1 || v > len(m.names) {
		return ""
	}
	if l < 0 {
		return "not(" + m.names[v-1] + ")"
	}
	return m.names[v-1]
}

// NumVars is the number of variables allocated so far.
func (m *Model) NumVars() int { return len(m.names) }

// NumConstraints counts cardinality constraints and products.
func (m *Model) NumConstraints() int { return len(m.constraints) + len(m.products) }

// AddLinearRange requires lo <= sum(lits) <= hi. Pass Unbounded for hi to drop the upper limit.
func (m *Model) AddLinearRange(lits []Literal, lo, hi int) *Constraint {
	c := &Constraint{Lits: append([]Literal(nil), lits...), Lo: lo, Hi: hi}
	m.constraints = append(m.constraints, c)
	return c
}

// AddExactly requires sum(lits) == k.
func (m *Model) AddExactly(lits []Literal, k int) *Constraint {
	return m.AddLinearRange(lits, k, k)
}

// AddAtLeast requires sum(lits) >= k.
func (m *Model) AddAtLeast(lits []Literal, k int) *Constraint {
	return m.AddLinearRange(lits, k, Unbounded)
}

// AddAtMost requires sum(lits) <= k.
func (m *Model) AddAtMost(lits []Literal, k int) *Constraint {
	return m.AddLinearRange(lits, 0, k)
}

// AddProduct defines target as the conjunction of factors.
func (m *Model) AddProduct(target Literal, factors ...Literal) {
	m.products = append(m.products, Product{Target: target, Factors: append([]Literal(nil), factors...)})
}

// Minimize sets a minimisation objective, replacing any previous one.
func (m *Model) Minimize(terms ...Term) {
	m.objective = &Objective{Sense: Minimize, Terms: append([]Term(nil), terms...)}
}

// Maximize sets a maximisation objective, replacing any previous one.
func (m *Model) Maximize(terms ...Term) {
	m.objective = &Objective{Sense: Maximize, Terms: append([]Term(nil), terms...)}
}

// HasObjective reports whether an objective was set.
func (m *Model) HasObjective() bool { return m.objective != nil && len(m.objective.Terms) > 0 }

// ErrInvalidModel is wrapped by Validate failures.
var ErrInvalidModel = errors.New("invalid model")

// Validate checks literal ranges and constraint bounds.
func (m *Model) Validate() error {
	check := func(l Literal) error {
		if l == 0 || l.Var() > len(m.names) {
			return fmt.Errorf("%w: literal %d out of range", ErrInvalidModel, l)
		}
		return nil
	}
	for i, c := range m.constraints {
		if c.Lo < 0 || (c.Hi != Unbounded && c.Hi < 0) {
			return fmt.Errorf("%w: constraint %d has negative bounds", ErrInvalidModel, i)
		}
		for _, l := range c.Lits {
			if err := check(l); err != nil {
				return err
			}
		}
		for _, l := range c.Enforce {
			if err := check(l); err != nil {
				return err
			}
		}
	}
	for _, p := range m.products {
		if err := check(p.Target); err != nil {
			return err
		}
		for _, l := range p.Factors {
			if err := check(l); err != nil {
				return err
			}
		}
	}
	if m.objective != nil {
		for _, term := range m.objective.Terms {
			if err := check(term.Lit); err != nil {
				return err
			}
		}
	}
	return nil
}

// Evaluate computes the objective for an assignment indexed by variable (index 0 unused).
func (m *Model) Evaluate(values []bool) int {
	if m.objective == nil {
		return 0
	}
	total := 0
	for _, term := range m.objective.Terms {
		if valueOf(values, term.Lit) {
			total += term.Weight
		}
	}
	return total
}

// Status is the outcome of a solve.
type Status int

const (
	Unknown Status = iota
	ModelInvalid
	Feasible
	Infeasible
	Optimal
)

func (s Status) String() string {
	switch s {
	case ModelInvalid:
		return "MODEL_INVALID"
	case Feasible:
		return "FEASIBLE"
	case Infeasible:
		return "INFEASIBLE"
	case Optimal:
		return "OPTIMAL"
	default:
		return "UNKNOWN"
	}
}

// Response holds the best assignment found.
type Response struct {
	Status    Status
	Objective int
	// Improvements counts solutions found while tightening the objective.
	Improvements int
	WallTime     time.Duration
	values       []bool
}

// NewResponse builds a response from a full assignment; used by solver backends and fakes.
func NewResponse(status Status, values []bool) *Response {
	return &Response{Status: status, values: values}
}

// HasSolution reports whether an assignment is available.
func (r *Response) HasSolution() bool {
	return r != nil && (r.Status == Optimal || r.Status == Feasible) && r.values != nil
}

// Value returns the value of l in the best assignment, false when there is none.
func (r *Response) Value(l Literal) bool {
	if r == nil {
		return false
	}
	return valueOf(r.values, l)
}

func valueOf(values []bool, l Literal) bool {
	v := l.Var()
	if v <= 0 || v >= len(values) {
		return false
	}
	if l < 0 {
		return !values[v]
	}
	return values[v]
}

// Solver runs a model under a wall-clock limit. The search itself is not interruptible.
type Solver interface {
	Solve(m *Model, limit time.Duration) (*Response, error)
}
