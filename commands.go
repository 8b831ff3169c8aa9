package mdb

import (
	"fmt"
	"strconv"
	"strings"
)

// The functions in this file are the interactive command table, each
// shaped as func(*Debugger, []string) error so cmd/mdb can wire them
// straight into its dispatcher without an adapter layer.

// Continue implements `continue`.
func Continue(db *Debugger, args []string) error {
	_, err := db.Continue()
	return err
}

// Break implements the three `break` forms: a literal hex address, a
// file:line source location, or a function name (post-prologue).
func Break(db *Debugger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("break: expected exactly one argument")
	}
	target := args[0]

	switch {
	case strings.HasPrefix(target, "0x") || strings.HasPrefix(target, "0X"):
		addr, err := ParseVirtualAddress(target)
		if err != nil {
			return fmt.Errorf("break: %w", err)
		}
		return setAndReportBreakpoint(db, addr)

	case strings.Contains(target, ":"):
		parts := strings.SplitN(target, ":", 2)
		line, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("break: invalid line number %q", parts[1])
		}
		addr, err := db.Navigator.ResolveSourceLocation(parts[0], line)
		if err != nil {
			return fmt.Errorf("break: %w", err)
		}
		return setAndReportBreakpoint(db, addr)

	default:
		addrs, err := db.Navigator.ResolveFunctionName(target)
		if err != nil {
			return fmt.Errorf("break: %w", err)
		}
		for _, addr := range addrs {
			if err := setAndReportBreakpoint(db, addr); err != nil {
				return err
			}
		}
		return nil
	}
}

func setAndReportBreakpoint(db *Debugger, addr VirtualAddress) error {
	if _, err := db.Breakpoints.Set(addr); err != nil {
		return fmt.Errorf("break: %w", err)
	}
	fmt.Printf("Set breakpoint at address %s\n", addr)
	return nil
}

// RegisterDump implements `register dump`.
func RegisterDump(db *Debugger, args []string) error {
	for _, desc := range db.Registers.Descriptors() {
		value, err := db.Registers.Read(desc)
		if err != nil {
			return fmt.Errorf("register dump: %w", err)
		}
		fmt.Printf("%s\t%s\n", desc.Name, FormatHex(value))
	}
	return nil
}

// RegisterRead implements `register read <name>`.
func RegisterRead(db *Debugger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("register read: expected exactly one argument")
	}

	desc, ok := ByName(args[0])
	if !ok {
		return fmt.Errorf("register read: %w: %s", ErrUnknownRegister, args[0])
	}

	value, err := db.Registers.Read(desc)
	if err != nil {
		return fmt.Errorf("register read: %w", err)
	}

	fmt.Println(value)
	return nil
}

// RegisterWrite implements `register write <name> 0x<hex>`.
func RegisterWrite(db *Debugger, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("register write: expected exactly two arguments")
	}

	desc, ok := ByName(args[0])
	if !ok {
		return fmt.Errorf("register write: %w: %s", ErrUnknownRegister, args[0])
	}

	value, err := ParseHexOrDecimal(args[1])
	if err != nil {
		return fmt.Errorf("register write: %w", err)
	}

	return db.Registers.Write(desc, value)
}

// MemoryRead implements `memory read 0x<addr>`.
func MemoryRead(db *Debugger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("memory read: expected exactly one argument")
	}

	addr, err := ParseVirtualAddress(args[0])
	if err != nil {
		return fmt.Errorf("memory read: %w", err)
	}

	value, err := db.ReadWord(addr)
	if err != nil {
		return fmt.Errorf("memory read: %w", err)
	}

	fmt.Println(FormatHex(value))
	return nil
}

// MemoryWrite implements `memory write 0x<addr> 0x<value>`.
func MemoryWrite(db *Debugger, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("memory write: expected exactly two arguments")
	}

	addr, err := ParseVirtualAddress(args[0])
	if err != nil {
		return fmt.Errorf("memory write: %w", err)
	}

	value, err := ParseHexOrDecimal(args[1])
	if err != nil {
		return fmt.Errorf("memory write: %w", err)
	}

	return db.WriteWord(addr, value)
}

// Step implements `step` (step-in).
func Step(db *Debugger, args []string) error {
	return db.StepIn()
}

// Next implements `next` (step-over).
func Next(db *Debugger, args []string) error {
	return db.StepOver()
}

// Finish implements `finish` (step-out).
func Finish(db *Debugger, args []string) error {
	return db.StepOut()
}

// SymbolLookup implements `symbol <name>`.
func SymbolLookup(db *Debugger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("symbol: expected exactly one argument")
	}

	symbols, err := db.Navigator.LookupSymbol(args[0])
	if err != nil {
		return fmt.Errorf("symbol: %w", err)
	}

	for _, sym := range symbols {
		fmt.Printf("%s %s %s\n", sym.Name, sym.Kind, sym.Address)
	}
	return nil
}

// Backtrace implements `backtrace`.
func Backtrace(db *Debugger, args []string) error {
	return db.PrintBacktrace()
}

// Variables implements `variables`.
func Variables(db *Debugger, args []string) error {
	return db.PrintVariables()
}
