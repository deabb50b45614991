// Package linearproblem provides the linear / mixed-integer model the fillers write
// into: a registry of named variables and constraints, an objective, and a solver.
package linearproblem

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Variable is a named decision variable.
type Variable struct {
	name     string
	index    int
	lb, ub   float64
	integer  bool
	solution float64
}

func (v *Variable) Name() string             { return v.name }
func (v *Variable) LB() float64              { return v.lb }
func (v *Variable) UB() float64              { return v.ub }
func (v *Variable) Integer() bool            { return v.integer }
func (v *Variable) SetLB(lb float64)         { v.lb = lb }
func (v *Variable) SetUB(ub float64)         { v.ub = ub }
func (v *Variable) SetBounds(lb, ub float64) { v.lb, v.ub = lb, ub }

// SolutionValue is the value found by the last successful solve.
func (v *Variable) SolutionValue() float64 { return v.solution }

// Constraint is a named linear row lb <= sum(coef * var) <= ub.
type Constraint struct {
	name         string
	lb, ub       float64
	coefficients map[int]float64
}

func (c *Constraint) Name() string             { return c.name }
func (c *Constraint) LB() float64              { return c.lb }
func (c *Constraint) UB() float64              { return c.ub }
func (c *Constraint) SetLB(lb float64)         { c.lb = lb }
func (c *Constraint) SetUB(ub float64)         { c.ub = ub }
func (c *Constraint) SetBounds(lb, ub float64) { c.lb, c.ub = lb, ub }

// Coefficient returns the coefficient of v, zero when v is not in the row.
func (c *Constraint) Coefficient(v *Variable) float64 {
	return c.coefficients[v.index]
}

// SetCoefficient sets, overwrites or (with zero) clears the coefficient of v.
func (c *Constraint) SetCoefficient(v *Variable, coef float64) {
	if coef == 0 {
		delete(c.coefficients, v.index)
		return
	}
	c.coefficients[v.index] = coef
}

// Objective is a linear cost, minimised unless SetMaximization is called.
type Objective struct {
	coefficients map[int]float64
	maximize     bool
	value        float64
}

func (o *Objective) Coefficient(v *Variable) float64 {
	return o.coefficients[v.index]
}

func (o *Objective) SetCoefficient(v *Variable, coef float64) {
	if coef == 0 {
		delete(o.coefficients, v.index)
		return
	}
	o.coefficients[v.index] = coef
}

func (o *Objective) SetMinimization()   { o.maximize = false }
func (o *Objective) SetMaximization()   { o.maximize = true }
func (o *Objective) Minimization() bool { return !o.maximize }

// Value is the objective value of the last successful solve.
func (o *Objective) Value() float64 { return o.value }

// Model is a registry of variables and constraints with an objective. It is
// not safe for concurrent use.
type Model struct {
	variables   []*Variable
	constraints []*Constraint
	varByName   map[string]*Variable
	conByName   map[string]*Constraint
	objective   *Objective
	log         zerolog.Logger
}

// NewModel creates an empty minimisation model.
func NewModel(log zerolog.Logger) *Model {
	return &Model{
		varByName: make(map[string]*Variable),
		conByName: make(map[string]*Constraint),
		objective: &Objective{coefficients: make(map[int]float64)},
		log:       log.With().Str("component", "lp_model").Logger(),
	}
}

// Infinity is the bound used for unbounded variables and constraints.
func Infinity() float64 { return math.Inf(1) }

func (m *Model) addVariable(lb, ub float64, integer bool, name string) (*Variable, error) {
	if _, ok := m.varByName[name]; ok {
		return nil, fmt.Errorf("variable %s: %w", name, ErrAlreadyCreated)
	}
	v := &Variable{name: name, index: len(m.variables), lb: lb, ub: ub, integer: integer}
	m.variables = append(m.variables, v)
	m.varByName[name] = v
	return v, nil
}

// AddNumVariable registers a continuous variable.
func (m *Model) AddNumVariable(lb, ub float64, name string) (*Variable, error) {
	return m.addVariable(lb, ub, false, name)
}

// AddIntVariable registers an integer variable.
func (m *Model) AddIntVariable(lb, ub float64, name string) (*Variable, error) {
	return m.addVariable(lb, ub, true, name)
}

// AddBoolVariable registers a binary variable.
func (m *Model) AddBoolVariable(name string) (*Variable, error) {
	return m.addVariable(0, 1, true, name)
}

// AddConstraint registers an empty row with the given bounds.
func (m *Model) AddConstraint(lb, ub float64, name string) (*Constraint, error) {
	if _, ok := m.conByName[name]; ok {
		return nil, fmt.Errorf("constraint %s: %w", name, ErrAlreadyCreated)
	}
	c := &Constraint{name: name, lb: lb, ub: ub, coefficients: make(map[int]float64)}
	m.constraints = append(m.constraints, c)
	m.conByName[name] = c
	return c, nil
}

// Variable looks a variable up by name.
func (m *Model) Variable(name string) (*Variable, error) {
	v, ok := m.varByName[name]
	if !ok {
		return nil, variableNotCreated(name)
	}
	return v, nil
}

// Constraint looks a constraint up by name.
func (m *Model) Constraint(name string) (*Constraint, error) {
	c, ok := m.conByName[name]
	if !ok {
		return nil, constraintNotCreated(name)
	}
	return c, nil
}

func (m *Model) Objective() *Objective { return m.objective }
func (m *Model) NumVariables() int     { return len(m.variables) }
func (m *Model) NumConstraints() int   { return len(m.constraints) }

// Variables returns the variables in creation order.
func (m *Model) Variables() []*Variable { return m.variables }

// Constraints returns the constraints in creation order.
func (m *Model) Constraints() []*Constraint { return m.constraints }
