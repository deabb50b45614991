package linearproblem

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const feasibilityTol = 1e-7

// problem is an immutable copy of a Model in minimisation form, so that the
// solver worker never reads the live model.
type problem struct {
	cost    []float64
	lb, ub  []float64
	integer []bool
	rows    []row
}

type row struct {
	idx    []int
	val    []float64
	lb, ub float64
}

func (r row) free() bool {
	return math.IsInf(r.lb, -1) && math.IsInf(r.ub, 1)
}

func (m *Model) snapshot() *problem {
	n := len(m.variables)
	p := &problem{
		cost:    make([]float64, n),
		lb:      make([]float64, n),
		ub:      make([]float64, n),
		integer: make([]bool, n),
		rows:    make([]row, 0, len(m.constraints)),
	}
	sign := 1.0
	if m.objective.maximize {
		sign = -1
	}
	for i, v := range m.variables {
		p.lb[i], p.ub[i], p.integer[i] = v.lb, v.ub, v.integer
	}
	for j, c := range m.objective.coefficients {
		p.cost[j] = sign * c
	}
	for _, c := range m.constraints {
		r := row{lb: c.lb, ub: c.ub, idx: make([]int, 0, len(c.coefficients))}
		for j := range c.coefficients {
			r.idx = append(r.idx, j)
		}
		sort.Ints(r.idx)
		r.val = make([]float64, len(r.idx))
		for k, j := range r.idx {
			r.val[k] = c.coefficients[j]
		}
		p.rows = append(p.rows, r)
	}
	return p
}

func (p *problem) objective(x []float64) float64 {
	return floats.Dot(p.cost, x)
}

type relaxation struct {
	status Status
	x      []float64
	obj    float64
}

type columnKind int

const (
	columnFixed columnKind = iota
	columnFromLower
	columnFromUpper
	columnFree
)

// column maps an original variable onto non-negative standard-form columns:
// fixed x = offset, from lower x = offset + y, from upper x = offset - y,
// free x = y - y'.
type column struct {
	kind   columnKind
	pos    int
	neg    int
	offset float64
}

type sparseRow struct {
	coef map[int]float64
	rhs  float64
}

// solveLP solves the continuous relaxation of p within the variable bounds lb, ub.
// The general form is rewritten into the standard form expected by lp.Simplex:
// every inequality row gets its own slack and dependent equality rows are dropped,
// which keeps the constraint matrix at full row rank.
func solveLP(p *problem, lb, ub []float64, tol float64) relaxation {
	n := len(p.cost)
	for j := 0; j < n; j++ {
		if lb[j] > ub[j]+feasibilityTol {
			return relaxation{status: StatusInfeasible}
		}
	}

	active := make([]bool, n)
	for _, r := range p.rows {
		if r.free() {
			continue
		}
		for _, j := range r.idx {
			active[j] = true
		}
	}

	cols := make([]column, n)
	ncols := 0
	var bounds []sparseRow
	for j := 0; j < n; j++ {
		l, u := lb[j], ub[j]
		if !active[j] {
			v, ok := bestAlone(p.cost[j], l, u)
			if !ok {
				return relaxation{status: StatusUnbounded}
			}
			cols[j] = column{kind: columnFixed, offset: v}
			continue
		}
		switch {
		case !math.IsInf(l, -1) && !math.IsInf(u, 1) && u-l <= feasibilityTol:
			cols[j] = column{kind: columnFixed, offset: l}
		case !math.IsInf(l, -1):
			cols[j] = column{kind: columnFromLower, pos: ncols, offset: l}
			if !math.IsInf(u, 1) {
				bounds = append(bounds, sparseRow{coef: map[int]float64{ncols: 1}, rhs: u - l})
			}
			ncols++
		case !math.IsInf(u, 1):
			cols[j] = column{kind: columnFromUpper, pos: ncols, offset: u}
			ncols++
		default:
			cols[j] = column{kind: columnFree, pos: ncols, neg: ncols + 1}
			ncols += 2
		}
	}

	cost := make([]float64, ncols)
	for j, c := range cols {
		switch c.kind {
		case columnFromLower:
			cost[c.pos] = p.cost[j]
		case columnFromUpper:
			cost[c.pos] = -p.cost[j]
		case columnFree:
			cost[c.pos] = p.cost[j]
			cost[c.neg] = -p.cost[j]
		}
	}

	var equalities, inequalities []sparseRow
	for _, r := range p.rows {
		if r.free() {
			continue
		}
		coef := make(map[int]float64, len(r.idx))
		constant := 0.0
		for k, j := range r.idx {
			a := r.val[k]
			c := cols[j]
			switch c.kind {
			case columnFixed:
				constant += a * c.offset
			case columnFromLower:
				constant += a * c.offset
				coef[c.pos] += a
			case columnFromUpper:
				constant += a * c.offset
				coef[c.pos] -= a
			case columnFree:
				coef[c.pos] += a
				coef[c.neg] -= a
			}
		}
		for k, v := range coef {
			if v == 0 {
				delete(coef, k)
			}
		}
		l, u := r.lb-constant, r.ub-constant
		if len(coef) == 0 {
			if l > feasibilityTol || u < -feasibilityTol {
				return relaxation{status: StatusInfeasible}
			}
			continue
		}
		if !math.IsInf(l, -1) && !math.IsInf(u, 1) && u-l <= feasibilityTol {
			equalities = append(equalities, sparseRow{coef: coef, rhs: (l + u) / 2})
			continue
		}
		if !math.IsInf(u, 1) {
			inequalities = append(inequalities, sparseRow{coef: coef, rhs: u})
		}
		if !math.IsInf(l, -1) {
			neg := make(map[int]float64, len(coef))
			for k, v := range coef {
				neg[k] = -v
			}
			inequalities = append(inequalities, sparseRow{coef: neg, rhs: -l})
		}
	}
	inequalities = append(inequalities, bounds...)

	equalities, ok := independentRows(equalities, ncols)
	if !ok {
		return relaxation{status: StatusInfeasible}
	}

	// Columns touched by no remaining row are set on their own.
	used := make([]bool, ncols)
	for _, rows := range [][]sparseRow{equalities, inequalities} {
		for _, r := range rows {
			for k := range r.coef {
				used[k] = true
			}
		}
	}
	remap := make([]int, ncols)
	nStruct := 0
	for k := 0; k < ncols; k++ {
		if !used[k] {
			if cost[k] < 0 {
				return relaxation{status: StatusUnbounded}
			}
			remap[k] = -1
			continue
		}
		remap[k] = nStruct
		nStruct++
	}

	y := make([]float64, ncols)
	m := len(equalities) + len(inequalities)
	if m > 0 {
		width := nStruct + len(inequalities)
		a := mat.NewDense(m, width, nil)
		b := make([]float64, m)
		c := make([]float64, width)
		for k := 0; k < ncols; k++ {
			if remap[k] >= 0 {
				c[remap[k]] = cost[k]
			}
		}
		for i, r := range equalities {
			for k, v := range r.coef {
				a.Set(i, remap[k], v)
			}
			b[i] = r.rhs
		}
		for i, r := range inequalities {
			ri := len(equalities) + i
			for k, v := range r.coef {
				a.Set(ri, remap[k], v)
			}
			a.Set(ri, nStruct+i, 1)
			b[ri] = r.rhs
		}
		status, sol := runSimplex(c, a, b, tol)
		if status != StatusOptimal {
			return relaxation{status: status}
		}
		for k := 0; k < ncols; k++ {
			if remap[k] >= 0 {
				y[k] = sol[remap[k]]
			}
		}
	}

	x := make([]float64, n)
	for j, c := range cols {
		switch c.kind {
		case columnFixed:
			x[j] = c.offset
		case columnFromLower:
			x[j] = c.offset + y[c.pos]
		case columnFromUpper:
			x[j] = c.offset - y[c.pos]
		case columnFree:
			x[j] = y[c.pos] - y[c.neg]
		}
	}
	return relaxation{status: StatusOptimal, x: x, obj: p.objective(x)}
}

func runSimplex(c []float64, a *mat.Dense, b []float64, tol float64) (status Status, x []float64) {
	defer func() {
		if r := recover(); r != nil {
			status, x = StatusAbnormal, nil
		}
	}()
	_, x, err := lp.Simplex(c, a, b, tol, nil)
	switch {
	case err == nil:
		return StatusOptimal, x
	case errors.Is(err, lp.ErrInfeasible):
		return StatusInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return StatusUnbounded, nil
	default:
		return StatusAbnormal, nil
	}
}

// bestAlone returns the optimal value of a variable that appears in no row.
func bestAlone(cost, lb, ub float64) (float64, bool) {
	switch {
	case cost > 0:
		return lb, !math.IsInf(lb, -1)
	case cost < 0:
		return ub, !math.IsInf(ub, 1)
	default:
		return math.Max(lb, math.Min(0, ub)), true
	}
}

// independentRows keeps a linearly independent subset of equality rows. ok is
// false when a dropped row contradicts the kept ones.
func independentRows(rows []sparseRow, ncols int) (kept []sparseRow, ok bool) {
	type pivot struct {
		col int
		vec []float64
		rhs float64
	}
	var pivots []pivot
	for _, r := range rows {
		vec := make([]float64, ncols)
		scale := 0.0
		for k, v := range r.coef {
			vec[k] = v
			scale = math.Max(scale, math.Abs(v))
		}
		rhs := r.rhs
		for _, pv := range pivots {
			if f := vec[pv.col]; f != 0 {
				floats.AddScaled(vec, -f, pv.vec)
				rhs -= f * pv.rhs
			}
		}
		best, bestAbs := -1, 0.0
		for k, v := range vec {
			if math.Abs(v) > bestAbs {
				best, bestAbs = k, math.Abs(v)
			}
		}
		if bestAbs <= 1e-9*(1+scale) {
			if math.Abs(rhs) > feasibilityTol*(1+math.Abs(r.rhs)) {
				return nil, false
			}
			continue
		}
		f := 1 / vec[best]
		floats.Scale(f, vec)
		vec[best] = 1
		pivots = append(pivots, pivot{col: best, vec: vec, rhs: rhs * f})
		kept = append(kept, r)
	}
	return kept, true
}
