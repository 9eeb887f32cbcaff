package cpsat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLimit = 5 * time.Second

func newBools(m *Model, n int) []Literal {
	lits := make([]Literal, n)
	for i := range lits {
		lits[i] = m.NewBool(fmt.Sprintf("x%d", i))
	}
	return lits
}

func countTrue(resp *Response, lits []Literal) int {
	total := 0
	for _, l := range lits {
		if resp.Value(l) {
			total++
		}
	}
	return total
}

func TestGiniExactly(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 5)
	m.AddExactly(xs, 2)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.Equal(t, Optimal, resp.Status)
	assert.True(t, resp.HasSolution())
	assert.Equal(t, 2, countTrue(resp, xs))
}

func TestGiniCardinalityMatchesBruteForce(t *testing.T) {
	const n = 4
	solver := NewGiniSolver(nil)
	for mask := 0; mask < 1<<n; mask++ {
		for lo := 0; lo <= n+1; lo++ {
			for _, hi := range []int{Unbounded, 0, 1, 2, 3, 4} {
				if hi != Unbounded && hi < lo {
					continue
				}
				m := NewModel()
				xs := newBools(m, n)
				want := 0
				for i, x := range xs {
					if mask&(1<<i) != 0 {
						m.AddExactly([]Literal{x}, 1)
						want++
					} else {
						m.AddAtMost([]Literal{x}, 0)
					}
				}
				m.AddLinearRange(xs, lo, hi)

				resp, err := solver.Solve(m, testLimit)
				require.NoError(t, err)
				feasible := want >= lo && (hi == Unbounded || want <= hi)
				if feasible {
					assert.Equal(t, Optimal, resp.Status, "mask=%b lo=%d hi=%d", mask, lo, hi)
				} else {
					assert.Equal(t, Infeasible, resp.Status, "mask=%b lo=%d hi=%d", mask, lo, hi)
				}
			}
		}
	}
}

func TestGiniInfeasible(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 3)
	m.AddExactly(xs, 3)
	m.AddAtMost(xs, 1)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, resp.Status)
	assert.False(t, resp.HasSolution())
}

func TestGiniExactlyOverEmptySet(t *testing.T) {
	m := NewModel()
	m.NewBool("unused")
	m.AddExactly(nil, 1)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, resp.Status)
}

func TestGiniEnforcementLiteral(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 3)
	enabled := m.NewBool("enabled")
	m.AddExactly(xs, 3).OnlyEnforceIf(enabled)
	m.AddAtMost(xs[:1], 0)
	m.Maximize(Term{Lit: enabled, Weight: 1})

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.Equal(t, Optimal, resp.Status)
	assert.False(t, resp.Value(enabled))
	assert.Equal(t, 0, resp.Objective)
}

func TestGiniNegatedEnforcement(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 2)
	used := m.NewBool("used")
	m.AddAtLeast(xs, 1).OnlyEnforceIf(used)
	m.AddAtMost(xs, 0).OnlyEnforceIf(used.Not())
	m.AddExactly([]Literal{xs[1]}, 1)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.True(t, resp.HasSolution())
	assert.True(t, resp.Value(used))
}

func TestGiniProduct(t *testing.T) {
	m := NewModel()
	a := m.NewBool("a")
	b := m.NewBool("b")
	both := m.NewBool("both")
	m.AddProduct(both, a, b)
	m.AddExactly([]Literal{both}, 1)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.True(t, resp.HasSolution())
	assert.True(t, resp.Value(a))
	assert.True(t, resp.Value(b))

	m2 := NewModel()
	a2 := m2.NewBool("a")
	b2 := m2.NewBool("b")
	both2 := m2.NewBool("both")
	m2.AddProduct(both2, a2, b2)
	m2.AddAtMost([]Literal{b2}, 0)
	m2.Maximize(Term{Lit: both2, Weight: 1})

	resp, err = NewGiniSolver(nil).Solve(m2, testLimit)
	require.NoError(t, err)
	assert.Equal(t, Optimal, resp.Status)
	assert.False(t, resp.Value(both2))
}

func TestGiniMaximize(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 6)
	m.AddAtMost(xs, 4)
	terms := make([]Term, len(xs))
	for i, x := range xs {
		terms[i] = Term{Lit: x, Weight: 1}
	}
	m.Maximize(terms...)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.Equal(t, Optimal, resp.Status)
	assert.Equal(t, 4, resp.Objective)
	assert.Equal(t, 4, countTrue(resp, xs))
}

func TestGiniMinimizeWeighted(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 5)
	m.AddAtLeast(xs, 2)
	terms := make([]Term, len(xs))
	for i, x := range xs {
		terms[i] = Term{Lit: x, Weight: 3}
	}
	m.Minimize(terms...)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.Equal(t, Optimal, resp.Status)
	assert.Equal(t, 6, resp.Objective)
}

func TestGiniNegativeWeights(t *testing.T) {
	m := NewModel()
	a := m.NewBool("a")
	b := m.NewBool("b")
	m.Maximize(Term{Lit: a, Weight: -2}, Term{Lit: b, Weight: 1})

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.Equal(t, Optimal, resp.Status)
	assert.Equal(t, 1, resp.Objective)
	assert.False(t, resp.Value(a))
	assert.True(t, resp.Value(b))
}

func TestObjectiveScale(t *testing.T) {
	assert.Equal(t, 3, objectiveScale([]Term{{Weight: 3}, {Weight: -6}, {Weight: 9}}))
	assert.Equal(t, 1, objectiveScale([]Term{{Weight: 2}, {Weight: 3}}))
	assert.Equal(t, 1, objectiveScale([]Term{{Weight: 0}}))
	assert.Equal(t, 4, objectiveScale([]Term{{Weight: 0}, {Weight: 4}}))
}

func TestGiniObjectiveCounterIsScaledDown(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 4)
	terms := make([]Term, len(xs))
	for i, x := range xs {
		terms[i] = Term{Lit: x, Weight: 3}
	}
	m.Minimize(terms...)

	enc := newEncoder(m.NumVars())
	obj := enc.objective(m.objective)
	assert.Equal(t, 3, obj.scale)
	assert.Len(t, obj.r, len(xs))
}

func TestGiniMixedWeightsReachOptimum(t *testing.T) {
	m := NewModel()
	xs := newBools(m, 4)
	m.AddAtLeast(xs, 2)
	m.Minimize(Term{Lit: xs[0], Weight: 6}, Term{Lit: xs[1], Weight: 4}, Term{Lit: xs[2], Weight: 2}, Term{Lit: xs[3], Weight: 8})

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.NoError(t, err)
	require.Equal(t, Optimal, resp.Status)
	assert.Equal(t, 6, resp.Objective)
	assert.True(t, resp.Value(xs[1]))
	assert.True(t, resp.Value(xs[2]))
}

func TestGiniInvalidModel(t *testing.T) {
	m := NewModel()
	m.NewBool("a")
	m.AddExactly([]Literal{Literal(7)}, 1)

	resp, err := NewGiniSolver(nil).Solve(m, testLimit)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidModel)
	assert.Equal(t, ModelInvalid, resp.Status)
}

func TestGiniZeroBudget(t *testing.T) {
	m := NewModel()
	m.AddExactly(newBools(m, 2), 1)

	resp, err := NewGiniSolver(nil).Solve(m, 0)
	require.NoError(t, err)
	assert.Equal(t, Unknown, resp.Status)
	assert.False(t, resp.HasSolution())
}

func TestModelNames(t *testing.T) {
	m := NewModel()
	a := m.NewBool("alice@mon-09")
	assert.Equal(t, "alice@mon-09", m.Name(a))
	assert.Equal(t, "not(alice@mon-09)", m.Name(a.Not()))
	assert.Equal(t, 1, m.NumVars())
	m.AddAtMost([]Literal{a}, 1)
	m.AddProduct(a, a)
	assert.Equal(t, 2, m.NumConstraints())
}
