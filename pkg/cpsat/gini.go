package cpsat

import (
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"go.uber.org/zap"
)

// GiniSolver encodes models to CNF and solves them with the gini SAT solver.
// Objectives are optimised by repeatedly asking for a strictly better value
// until the solver proves no better value exists or the time limit expires.
type GiniSolver struct {
	logger *zap.Logger
}

// NewGiniSolver builds a solver. A nil logger disables logging.
func NewGiniSolver(logger *zap.Logger) *GiniSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GiniSolver{logger: logger}
}

// Solve implements Solver.
func (s *GiniSolver) Solve(m *Model, limit time.Duration) (*Response, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return &Response{Status: ModelInvalid}, err
	}

	enc := newEncoder(m.NumVars())
	for _, c := range m.constraints {
		enc.cardinality(c)
	}
	for _, p := range m.products {
		enc.product(p)
	}
	var obj *objectiveCounter
	if m.HasObjective() {
		obj = enc.objective(m.objective)
	}

	deadline := start.Add(limit)
	resp := &Response{Status: Unknown}
	var assume []z.Lit
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if len(assume) > 0 {
			enc.g.Assume(assume...)
		}
		outcome := enc.g.GoSolve().Try(remaining)
		if outcome == 0 {
			break
		}
		if outcome < 0 {
			if resp.values != nil {
				resp.Status = Optimal
			} else {
				resp.Status = Infeasible
			}
			break
		}

		resp.values = enc.assignment(m.NumVars())
		resp.Objective = m.Evaluate(resp.values)
		resp.Improvements++
		resp.Status = Feasible
		if obj == nil {
			resp.Status = Optimal
			break
		}
		next, ok := obj.tighten(resp.Objective)
		if !ok {
			resp.Status = Optimal
			break
		}
		assume = []z.Lit{next}
	}

	resp.WallTime = time.Since(start)
	s.logger.Debug("sat solve finished",
		zap.String("status", resp.Status.String()),
		zap.Int("objective", resp.Objective),
		zap.Int("improvements", resp.Improvements),
		zap.Int("vars", enc.next),
		zap.Int("clauses", enc.clauses),
		zap.Duration("elapsed", resp.WallTime),
	)
	return resp, nil
}

type encoder struct {
	g       *gini.Gini
	next    int
	clauses int
}

func newEncoder(modelVars int) *encoder {
	e := &encoder{g: gini.New(), next: modelVars}
	// a unit clause above every model variable sizes the solver for all of them,
	// including variables no constraint mentions
	e.clause(e.fresh())
	return e
}

func (e *encoder) lit(l Literal) z.Lit {
	if l < 0 {
		return z.Var(-l).Pos().Not()
	}
	return z.Var(l).Pos()
}

func (e *encoder) fresh() z.Lit {
	e.next++
	return z.Var(e.next).Pos()
}

func (e *encoder) clause(lits ...z.Lit) {
	for _, l := range lits {
		e.g.Add(l)
	}
	e.g.Add(0)
	e.clauses++
}

// guarded adds a clause prefixed with the negated enforcement literals.
func (e *encoder) guarded(enforce []z.Lit, lits ...z.Lit) {
	all := make([]z.Lit, 0, len(enforce)+len(lits))
	for _, g := range enforce {
		all = append(all, g.Not())
	}
	all = append(all, lits...)
	if len(all) == 0 {
		// empty clause: make the formula unsatisfiable explicitly
		f := e.fresh()
		e.clause(f)
		e.clause(f.Not())
		return
	}
	e.clause(all...)
}

// counter builds a sequential counter over xs and returns r where r[j] <-> sum(xs) >= j+1,
// for j < width.
func (e *encoder) counter(xs []z.Lit, width int) []z.Lit {
	if width > len(xs) {
		width = len(xs)
	}
	if width <= 0 {
		return nil
	}
	var prev []z.Lit
	for i, x := range xs {
		n := i + 1
		if n > width {
			n = width
		}
		cur := make([]z.Lit, n)
		for j := 0; j < n; j++ {
			cur[j] = e.fresh()
			hasPrev := j < len(prev)
			if hasPrev {
				e.clause(prev[j].Not(), cur[j])
			}
			if j == 0 {
				e.clause(x.Not(), cur[j])
			} else {
				e.clause(x.Not(), prev[j-1].Not(), cur[j])
			}
			if hasPrev {
				e.clause(cur[j].Not(), prev[j], x)
				if j > 0 {
					e.clause(cur[j].Not(), prev[j], prev[j-1])
				}
			} else {
				e.clause(cur[j].Not(), x)
				if j > 0 {
					e.clause(cur[j].Not(), prev[j-1])
				}
			}
		}
		prev = cur
	}
	return prev
}

func (e *encoder) cardinality(c *Constraint) {
	xs := make([]z.Lit, len(c.Lits))
	for i, l := range c.Lits {
		xs[i] = e.lit(l)
	}
	enforce := make([]z.Lit, len(c.Enforce))
	for i, l := range c.Enforce {
		enforce[i] = e.lit(l)
	}

	n := len(xs)
	lo, hi := c.Lo, c.Hi
	if hi == Unbounded || hi > n {
		hi = n
	}
	if lo > hi {
		e.guarded(enforce)
		return
	}
	if lo == 0 && hi == n {
		return
	}
	if hi == 0 {
		for _, x := range xs {
			e.guarded(enforce, x.Not())
		}
		return
	}
	if lo == n {
		for _, x := range xs {
			e.guarded(enforce, x)
		}
		return
	}
	if lo == 1 && hi == n {
		e.guarded(enforce, xs...)
		return
	}

	width := lo
	if hi < n && hi+1 > width {
		width = hi + 1
	}
	r := e.counter(xs, width)
	if lo > 0 {
		e.guarded(enforce, r[lo-1])
	}
	if hi < n {
		e.guarded(enforce, r[hi].Not())
	}
}

func (e *encoder) product(p Product) {
	t := e.lit(p.Target)
	long := make([]z.Lit, 0, len(p.Factors)+1)
	long = append(long, t)
	for _, f := range p.Factors {
		fl := e.lit(f)
		e.clause(t.Not(), fl)
		long = append(long, fl.Not())
	}
	e.clause(long...)
}

// objectiveCounter tracks the counter outputs used to demand a better objective.
type objectiveCounter struct {
	sense  Sense
	offset int
	scale  int
	r      []z.Lit
}

func (e *encoder) objective(obj *Objective) *objectiveCounter {
	scale := objectiveScale(obj.Terms)
	var units []z.Lit
	offset := 0
	for _, term := range obj.Terms {
		l := e.lit(term.Lit)
		w := term.Weight
		if w < 0 {
			// w*l == |w|*not(l) - |w|
			l = l.Not()
			offset += w
			w = -w
		}
		for k := 0; k < w/scale; k++ {
			units = append(units, l)
		}
	}
	return &objectiveCounter{sense: obj.Sense, offset: offset, scale: scale, r: e.counter(units, len(units))}
}

// objectiveScale is the gcd of the absolute term weights, 1 when every weight is zero.
func objectiveScale(terms []Term) int {
	g := 0
	for _, term := range terms {
		w := term.Weight
		if w < 0 {
			w = -w
		}
		for w != 0 {
			g, w = w, g%w
		}
	}
	if g == 0 {
		return 1
	}
	return g
}

// tighten returns the assumption forcing a strictly better objective than current.
func (o *objectiveCounter) tighten(current int) (z.Lit, bool) {
	count := (current - o.offset) / o.scale
	if o.sense == Maximize {
		if count >= len(o.r) {
			return 0, false
		}
		return o.r[count], true
	}
	if count <= 0 {
		return 0, false
	}
	return o.r[count-1].Not(), true
}

func (e *encoder) assignment(modelVars int) []bool {
	values := make([]bool, modelVars+1)
	for v := 1; v <= modelVars; v++ {
		values[v] = e.g.Value(z.Var(v).Pos())
	}
	return values
}
