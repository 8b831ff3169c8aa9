package mdb

import (
	"debug/dwarf"
	"fmt"

	"github.com/Alan998/mini-debugger/internal/dwarfeval"
)

// ErrUnhandledVariableLocation is reported for a variable whose location
// attribute is missing or uses an expression the evaluator cannot
// resolve.
var ErrUnhandledVariableLocation = fmt.Errorf("unhandled variable location")

// VariableValue is one variable resolved against the tracee's current
// stack frame.
type VariableValue struct {
	Name     string
	Location dwarfeval.Location
	Value    uint64
}

// PrintVariables implements the `variables` command: find the function
// the tracee is currently stopped in, evaluate the location of each of
// its immediate variable children, and print each one. A variable whose
// location can't be resolved fails the whole command with
// ErrUnhandledVariableLocation; variables already printed before it stay
// printed, but nothing after it runs.
func (db *Debugger) PrintVariables() error {
	pc, err := db.ProgramCounter()
	if err != nil {
		return err
	}

	fn, err := db.Navigator.FunctionFromPC(db.Navigator.ToDwarf(pc))
	if err != nil {
		return fmt.Errorf("failed to read variables: %w", err)
	}

	children, err := fn.Variables()
	if err != nil {
		return fmt.Errorf("failed to read variables: %w", err)
	}

	ctx, err := newEvaluationContext(db)
	if err != nil {
		return err
	}

	for _, child := range children {
		name, _ := child.Val(dwarf.AttrName).(string)
		if name == "" {
			continue
		}

		v, err := resolveVariable(ctx, name, child)
		if err != nil {
			return err
		}

		switch v.Location.Kind {
		case dwarfeval.KindRegister:
			fmt.Printf("%s (reg %d) = %d\n", v.Name, v.Location.Register, v.Value)
		default:
			fmt.Printf("%s (%#x) = %d\n", v.Name, v.Location.Address, v.Value)
		}
	}

	return nil
}

func resolveVariable(ctx *evaluationContext, name string, child *dwarf.Entry) (VariableValue, error) {
	raw, ok := child.Val(dwarf.AttrLocation).([]byte)
	if !ok {
		return VariableValue{}, fmt.Errorf("%s: %w", name, ErrUnhandledVariableLocation)
	}

	loc, err := dwarfeval.Evaluate(raw, ctx)
	if err != nil {
		return VariableValue{}, fmt.Errorf("%s: %w: %v", name, ErrUnhandledVariableLocation, err)
	}

	var value uint64
	switch loc.Kind {
	case dwarfeval.KindRegister:
		value, err = ctx.Register(loc.Register)
	default:
		value, err = ctx.DerefWord(loc.Address)
	}
	if err != nil {
		return VariableValue{}, fmt.Errorf("%s: %w", name, err)
	}

	return VariableValue{Name: name, Location: loc, Value: value}, nil
}
