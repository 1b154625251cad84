package trellis

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/cucumber/godog"
)

// reactiveCellsBDDContext holds the per-scenario state the Gherkin steps
// below operate on, grounded on the teacher's BDD test contexts (a reset
// struct plus named lookups instead of positional test fixtures).
type reactiveCellsBDDContext struct {
	mu sync.Mutex

	ctrl    *Controller
	values  map[string]*Value
	cells   map[string]*ReadOnlyCell
	lastErr error
}

func (c *reactiveCellsBDDContext) resetContext() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctrl = NewController()
	c.values = make(map[string]*Value)
	c.cells = make(map[string]*ReadOnlyCell)
	c.lastErr = nil
}

func (c *reactiveCellsBDDContext) aFreshTrellisController() error {
	c.resetContext()
	return nil
}

func (c *reactiveCellsBDDContext) aValueCellWithInitialValue(name, rawVal string) error {
	n, err := strconv.Atoi(rawVal)
	if err != nil {
		return err
	}
	c.values[name] = NewValue(c.ctrl, n)
	return nil
}

func (c *reactiveCellsBDDContext) aDiscreteValueCell(name string) error {
	c.values[name] = NewDiscreteValue(c.ctrl)
	return nil
}

func (c *reactiveCellsBDDContext) aRuleCellThatDoublesTheValueOf(ruleName, depName string) error {
	src, ok := c.values[depName]
	if !ok {
		return errors.New("no such value cell: " + depName)
	}
	c.cells[ruleName] = NewReadOnlyCell(c.ctrl, func(any) any {
		return src.Get().(int) * 2
	})
	return nil
}

func (c *reactiveCellsBDDContext) aRuleCellThatCopiesInto(ruleName, srcName, dstName string) error {
	src, ok := c.values[srcName]
	if !ok {
		return errors.New("no such value cell: " + srcName)
	}
	dst, ok := c.values[dstName]
	if !ok {
		return errors.New("no such value cell: " + dstName)
	}
	c.cells[ruleName] = NewReadOnlyCell(c.ctrl, func(any) any {
		val := src.Get()
		_ = c.ctrl.Atomically(func() error { return dst.Set(val) })
		return val
	})
	return nil
}

func (c *reactiveCellsBDDContext) iSetTo(name, rawVal string) error {
	v, ok := c.values[name]
	if !ok {
		return errors.New("no such value cell: " + name)
	}
	var val any
	switch rawVal {
	case "true", "false":
		val = rawVal == "true"
	default:
		n, err := strconv.Atoi(rawVal)
		if err != nil {
			return err
		}
		val = n
	}
	c.lastErr = c.ctrl.Atomically(func() error { return v.Set(val) })
	return nil
}

func (c *reactiveCellsBDDContext) iAdvanceToTheNextPulse() error {
	c.lastErr = c.ctrl.Atomically(func() error { return nil })
	return nil
}

func (c *reactiveCellsBDDContext) theRuleCellShouldEqual(name, rawVal string) error {
	n, err := strconv.Atoi(rawVal)
	if err != nil {
		return err
	}
	rc, ok := c.cells[name]
	if !ok {
		return errors.New("no such rule cell: " + name)
	}
	if got := rc.Get(); got != n {
		return fmt.Errorf("rule cell %q: expected %v, got %v", name, n, got)
	}
	return nil
}

func (c *reactiveCellsBDDContext) theDiscreteValueCellShouldEqual(name, rawVal string) error {
	v, ok := c.values[name]
	if !ok {
		return errors.New("no such value cell: " + name)
	}
	want := rawVal == "true"
	if got := v.Get(); got != want {
		return fmt.Errorf("discrete cell %q: expected %v, got %v", name, want, got)
	}
	return nil
}

func (c *reactiveCellsBDDContext) theDiscreteValueCellShouldBeNil(name string) error {
	v, ok := c.values[name]
	if !ok {
		return errors.New("no such value cell: " + name)
	}
	if got := v.Get(); got != nil {
		return fmt.Errorf("discrete cell %q: expected nil, got %v", name, got)
	}
	return nil
}

func (c *reactiveCellsBDDContext) thePulseShouldFailWithACircularDependencyError() error {
	if c.lastErr == nil {
		return errors.New("expected the pulse to fail, but it succeeded")
	}
	var circ *CircularityError
	if !errors.As(c.lastErr, &circ) {
		return fmt.Errorf("expected a *CircularityError, got %v", c.lastErr)
	}
	return nil
}

func TestReactiveCellsBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			testCtx := &reactiveCellsBDDContext{}

			sc.Given(`^a fresh trellis controller$`, testCtx.aFreshTrellisController)
			sc.Given(`^a value cell "([^"]*)" with initial value (\d+)$`, testCtx.aValueCellWithInitialValue)
			sc.Given(`^a discrete value cell "([^"]*)"$`, testCtx.aDiscreteValueCell)
			sc.Given(`^a rule cell "([^"]*)" that doubles the value of "([^"]*)"$`, testCtx.aRuleCellThatDoublesTheValueOf)
			sc.Given(`^a rule cell "([^"]*)" that copies "([^"]*)" into "([^"]*)"$`, testCtx.aRuleCellThatCopiesInto)

			sc.When(`^I set "([^"]*)" to (true|false|\d+)$`, testCtx.iSetTo)
			sc.When(`^I advance to the next pulse$`, testCtx.iAdvanceToTheNextPulse)

			sc.Then(`^the rule cell "([^"]*)" should equal (\d+)$`, testCtx.theRuleCellShouldEqual)
			sc.Then(`^the discrete value cell "([^"]*)" should equal (true|false)$`, testCtx.theDiscreteValueCellShouldEqual)
			sc.Then(`^the discrete value cell "([^"]*)" should be nil$`, testCtx.theDiscreteValueCellShouldBeNil)
			sc.Then(`^the pulse should fail with a circular dependency error$`, testCtx.thePulseShouldFailWithACircularDependencyError)
		},
		Options: &godog.Options{
			Format: "pretty",
			Paths:  []string{"features"},
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
