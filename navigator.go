package mdb

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
	"strings"
)

// Errors returned by Navigator lookups. Callers match against these with
// errors.Is when deciding how to report a failed command.
var (
	ErrFunctionNotFound = fmt.Errorf("function not found")
	ErrLineNotFound     = fmt.Errorf("no line information found")
	ErrSymbolNotFound   = fmt.Errorf("symbol not found")
	ErrNoDebugInfo      = fmt.Errorf("executable has no DWARF debug info")
)

// FunctionEntry is a DWARF subprogram DIE resolved to its PC range.
// LowPC/HighPC are in DWARF (unbiased) address space.
type FunctionEntry struct {
	Name          string
	LowPC, HighPC uint64

	entry *dwarf.Entry
	nav   *Navigator
}

// Contains reports whether the DWARF-space address pc falls within the
// function's range.
func (fn *FunctionEntry) Contains(pc uint64) bool {
	return fn.LowPC <= pc && pc < fn.HighPC
}

// Variables returns the function's immediate variable children. Formal
// parameters are not included. Nested lexical blocks are not descended
// into: a variable declared inside an inner { } scope is invisible to
// `variables` regardless of whether the current PC is inside that scope.
func (fn *FunctionEntry) Variables() ([]*dwarf.Entry, error) {
	if !fn.entry.Children {
		return nil, nil
	}

	r := fn.nav.dwarfData.Reader()
	r.Seek(fn.entry.Offset)
	if _, err := r.Next(); err != nil {
		return nil, fmt.Errorf("failed to read variables of %s: %w", fn.Name, err)
	}

	var vars []*dwarf.Entry
	for {
		child, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read variables of %s: %w", fn.Name, err)
		}
		if child == nil || child.Tag == 0 {
			break
		}
		if child.Tag == dwarf.TagVariable {
			vars = append(vars, child)
		}
		if child.Children {
			r.SkipChildren()
		}
	}

	return vars, nil
}

// LineEntry is one row of a compile unit's line-number program: the
// statement boundary at Address begins line Line of File.
type LineEntry struct {
	File    string
	Line    int
	Address uint64 // DWARF (unbiased) address space
	IsStmt  bool
}

// Navigator answers every pc<->function, pc<->line, name->address, and
// symbol-table query the debugger needs, built once from the tracee's ELF
// image and its embedded DWARF sections. It deliberately delegates
// structural ELF/DWARF parsing to the standard library (debug/elf,
// debug/dwarf) rather than hand-rolling a parser: only the DWARF
// location-expression evaluator (internal/dwarfeval) is treated as core,
// hand-written logic.
type Navigator struct {
	elfFile   *elf.File
	dwarfData *dwarf.Data
	loadBias  uint64
}

func newNavigator(db *Debugger) (*Navigator, error) {
	exePath := fmt.Sprintf("/proc/%d/exe", db.Pid)

	elfFile, err := elf.Open(exePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open executable image: %w", err)
	}

	// A target built without -g (or stripped) has no DWARF section at
	// all; mdb still attaches for register/memory/breakpoint-by-address
	// work, it just can't answer DWARF-dependent queries. Any error from
	// DWARF(), including one caused by malformed sections, is treated the
	// same as absent debug info.
	dwarfData, err := elfFile.DWARF()
	if err != nil {
		dwarfData = nil
	}

	bias, err := initialiseLoadBias(db.Pid, elfFile.Type)
	if err != nil {
		_ = elfFile.Close()
		return nil, err
	}

	return &Navigator{elfFile: elfFile, dwarfData: dwarfData, loadBias: bias}, nil
}

// Close releases the underlying ELF file handle.
func (nav *Navigator) Close() error {
	return nav.elfFile.Close()
}

// ToRuntime maps a DWARF-space address to the address it occupies inside
// the running tracee.
func (nav *Navigator) ToRuntime(addr uint64) VirtualAddress {
	return VirtualAddress(addr + nav.loadBias)
}

// ToDwarf maps a running tracee's address back to DWARF space.
func (nav *Navigator) ToDwarf(addr VirtualAddress) uint64 {
	return uint64(addr) - nav.loadBias
}

// FunctionFromPC returns the subprogram DIE whose range contains the
// DWARF-space address dwarfPC.
func (nav *Navigator) FunctionFromPC(dwarfPC uint64) (*FunctionEntry, error) {
	if nav.dwarfData == nil {
		return nil, ErrNoDebugInfo
	}

	r := nav.dwarfData.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve function at pc: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}

		ranges, err := nav.dwarfData.Ranges(entry)
		if err != nil || !addressInRanges(ranges, dwarfPC) {
			continue
		}

		name, _ := entry.Val(dwarf.AttrName).(string)
		low, high := rangesBounds(ranges)
		return &FunctionEntry{Name: name, LowPC: low, HighPC: high, entry: entry, nav: nav}, nil
	}

	return nil, ErrFunctionNotFound
}

// LineEntryFromPC returns the line-table row covering the DWARF-space
// address dwarfPC.
func (nav *Navigator) LineEntryFromPC(dwarfPC uint64) (*LineEntry, error) {
	if nav.dwarfData == nil {
		return nil, ErrNoDebugInfo
	}

	cu, err := nav.compileUnitContaining(dwarfPC)
	if err != nil {
		return nil, err
	}

	lr, err := nav.dwarfData.LineReader(cu)
	if err != nil {
		return nil, fmt.Errorf("failed to read line table: %w", err)
	}

	var entry dwarf.LineEntry
	if err := lr.SeekPC(dwarfPC, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLineNotFound, err)
	}

	fileName := ""
	if entry.File != nil {
		fileName = entry.File.Name
	}

	return &LineEntry{
		File:    fileName,
		Line:    entry.Line,
		Address: entry.Address,
		IsStmt:  entry.IsStmt,
	}, nil
}

func (nav *Navigator) compileUnitContaining(dwarfPC uint64) (*dwarf.Entry, error) {
	r := nav.dwarfData.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to locate compile unit: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}

		ranges, err := nav.dwarfData.Ranges(entry)
		if err == nil && addressInRanges(ranges, dwarfPC) {
			return entry, nil
		}
		r.SkipChildren()
	}

	return nil, fmt.Errorf("%w: no compile unit covers address", ErrLineNotFound)
}

// ResolveFunctionName returns the runtime entry address (post-prologue,
// i.e. the line-table row following the row that covers the function's
// low PC) of every subprogram DIE named name, across every compile unit.
func (nav *Navigator) ResolveFunctionName(name string) ([]VirtualAddress, error) {
	if nav.dwarfData == nil {
		return nil, ErrNoDebugInfo
	}

	var addrs []VirtualAddress
	var currentCU *dwarf.Entry

	r := nav.dwarfData.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve function %q: %w", name, err)
		}
		if entry == nil {
			break
		}

		if entry.Tag == dwarf.TagCompileUnit {
			currentCU = entry
			continue
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}

		fnName, _ := entry.Val(dwarf.AttrName).(string)
		if fnName != name {
			continue
		}

		low, ok := entry.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}

		addrs = append(addrs, nav.ToRuntime(nav.addressAfterPrologue(currentCU, low)))
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}

	return addrs, nil
}

// addressAfterPrologue advances one line-table row past low, skipping the
// function's prologue the same way `break <function>` should. If the line
// table has nothing useful to say, it falls back to low itself.
func (nav *Navigator) addressAfterPrologue(cu *dwarf.Entry, low uint64) uint64 {
	if cu == nil {
		return low
	}

	lr, err := nav.dwarfData.LineReader(cu)
	if err != nil {
		return low
	}

	var entry dwarf.LineEntry
	if err := lr.SeekPC(low, &entry); err != nil {
		return low
	}

	var next dwarf.LineEntry
	if err := lr.Next(&next); err != nil {
		return low
	}

	return next.Address
}

// ResolveSourceLocation returns the runtime address of the first
// statement-boundary line-table row matching line, taken from the first
// compile unit whose name ends with fileSuffix and whose line table has
// such a row. If more than one matching compile unit has the line, the
// first one encountered wins.
func (nav *Navigator) ResolveSourceLocation(fileSuffix string, line int) (VirtualAddress, error) {
	if nav.dwarfData == nil {
		return 0, ErrNoDebugInfo
	}

	r := nav.dwarfData.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return 0, fmt.Errorf("failed to resolve %s:%d: %w", fileSuffix, line, err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}

		cuName, _ := entry.Val(dwarf.AttrName).(string)
		if !strings.HasSuffix(cuName, fileSuffix) {
			r.SkipChildren()
			continue
		}

		addr, err := nav.firstStatementAtLine(entry, line)
		if err == nil {
			return nav.ToRuntime(addr), nil
		}
		r.SkipChildren()
	}

	return 0, fmt.Errorf("%w: %s:%d", ErrLineNotFound, fileSuffix, line)
}

func (nav *Navigator) firstStatementAtLine(cu *dwarf.Entry, line int) (uint64, error) {
	lr, err := nav.dwarfData.LineReader(cu)
	if err != nil {
		return 0, err
	}

	var entry dwarf.LineEntry
	for {
		err := lr.Next(&entry)
		if err == io.EOF {
			return 0, ErrLineNotFound
		}
		if err != nil {
			return 0, err
		}
		if entry.Line == line && entry.IsStmt {
			return entry.Address, nil
		}
	}
}

// LineEntriesInRange returns every line-table row whose address falls in
// [low, high), used by the step-over algorithm to find every statement
// boundary inside a function.
func (nav *Navigator) LineEntriesInRange(low, high uint64) ([]LineEntry, error) {
	cu, err := nav.compileUnitContaining(low)
	if err != nil {
		return nil, err
	}

	lr, err := nav.dwarfData.LineReader(cu)
	if err != nil {
		return nil, fmt.Errorf("failed to read line table: %w", err)
	}

	var entries []LineEntry
	var e dwarf.LineEntry
	for {
		err := lr.Next(&e)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line table: %w", err)
		}
		if e.Address < low || e.Address >= high {
			continue
		}

		fileName := ""
		if e.File != nil {
			fileName = e.File.Name
		}
		entries = append(entries, LineEntry{File: fileName, Line: e.Line, Address: e.Address, IsStmt: e.IsStmt})
	}

	return entries, nil
}

// LookupSymbol returns every static or dynamic symbol table entry named
// name. Names are matched exactly: mdb never demangles them.
func (nav *Navigator) LookupSymbol(name string) ([]Symbol, error) {
	var results []Symbol

	tables := [][]elf.Symbol{
		symbolsOrEmpty(nav.elfFile),
		dynSymbolsOrEmpty(nav.elfFile),
	}

	for _, table := range tables {
		for _, sym := range table {
			if sym.Name != name {
				continue
			}
			results = append(results, Symbol{
				Kind:    symbolKind(sym),
				Name:    sym.Name,
				Address: nav.ToRuntime(sym.Value),
			})
		}
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}

	return results, nil
}

func symbolsOrEmpty(elfFile *elf.File) []elf.Symbol {
	syms, err := elfFile.Symbols()
	if err != nil {
		return nil
	}
	return syms
}

func dynSymbolsOrEmpty(elfFile *elf.File) []elf.Symbol {
	syms, err := elfFile.DynamicSymbols()
	if err != nil {
		return nil
	}
	return syms
}

func symbolKind(sym elf.Symbol) SymbolKind {
	switch elf.ST_TYPE(sym.Info) {
	case elf.STT_OBJECT:
		return SymbolObject
	case elf.STT_FUNC:
		return SymbolFunction
	case elf.STT_SECTION:
		return SymbolSection
	case elf.STT_FILE:
		return SymbolFile
	default:
		return SymbolNoType
	}
}

func addressInRanges(ranges [][2]uint64, pc uint64) bool {
	for _, rg := range ranges {
		if pc >= rg[0] && pc < rg[1] {
			return true
		}
	}
	return false
}

func rangesBounds(ranges [][2]uint64) (uint64, uint64) {
	if len(ranges) == 0 {
		return 0, 0
	}
	low, high := ranges[0][0], ranges[0][1]
	for _, rg := range ranges[1:] {
		if rg[0] < low {
			low = rg[0]
		}
		if rg[1] > high {
			high = rg[1]
		}
	}
	return low, high
}
