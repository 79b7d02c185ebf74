// Package level converts accumulated experience into a player level.
package level

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultXPPerLevel is the step of the linear curve.
const DefaultXPPerLevel = 100

// Curve maps experience to a level. Implementations must be non-decreasing in xp
// and never return less than 1.
type Curve interface {
	LevelFor(xp int64) (int, error)
}

// Linear grants one level per XPPerLevel experience.
type Linear struct {
	XPPerLevel int64
}

// LevelFor implements Curve.
func (l Linear) LevelFor(xp int64) (int, error) {
	step := l.XPPerLevel
	if step <= 0 {
		step = DefaultXPPerLevel
	}
	if xp < 0 {
		xp = 0
	}
	return 1 + int(xp/step), nil
}

// ExprCurve evaluates an expr-lang expression over the variable xp.
type ExprCurve struct {
	source  string
	program *vm.Program
}

// NewExprCurve compiles expression once, e.g. "1 + int(xp / 250)".
func NewExprCurve(expression string) (*ExprCurve, error) {
	if expression == "" {
		return nil, fmt.Errorf("level curve expression must not be empty")
	}
	program, err := expr.Compile(expression, expr.Env(map[string]any{"xp": 0}))
	if err != nil {
		return nil, fmt.Errorf("compile level curve %q: %w", expression, err)
	}
	return &ExprCurve{source: expression, program: program}, nil
}

// LevelFor implements Curve. Results below 1 are clamped to 1.
func (c *ExprCurve) LevelFor(xp int64) (int, error) {
	if xp < 0 {
		xp = 0
	}
	out, err := expr.Run(c.program, map[string]any{"xp": int(xp)})
	if err != nil {
		return 0, fmt.Errorf("evaluate level curve %q: %w", c.source, err)
	}

	var lvl int
	switch v := out.(type) {
	case int:
		lvl = v
	case int64:
		lvl = int(v)
	case float64:
		lvl = int(math.Floor(v))
	default:
		return 0, fmt.Errorf("level curve %q returned %T, want a number", c.source, out)
	}
	if lvl < 1 {
		lvl = 1
	}
	return lvl, nil
}

// String returns the source expression.
func (c *ExprCurve) String() string {
	return c.source
}
