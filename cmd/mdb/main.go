// Command mdb is the interactive entry point: it forks and execs (or
// attaches to) a target process, then drives it through a readline REPL
// dispatching to the mdb package's command table by prefix match.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Alan998/mini-debugger"
)

type command struct {
	name string
	run  func(*mdb.Debugger, []string) error
}

// errQuit unwinds the REPL loop when the quit command runs. It goes
// through the same prefix dispatch as every other command so that an
// unambiguous abbreviation like "q" works the same way "b" works for
// break.
var errQuit = errors.New("quit")

var commands = []command{
	{name: "continue", run: mdb.Continue},
	{name: "break", run: mdb.Break},
	{name: "register", run: dispatchRegister},
	{name: "memory", run: dispatchMemory},
	{name: "step", run: mdb.Step},
	{name: "next", run: mdb.Next},
	{name: "finish", run: mdb.Finish},
	{name: "symbol", run: mdb.SymbolLookup},
	{name: "backtrace", run: mdb.Backtrace},
	{name: "variables", run: mdb.Variables},
	{name: "quit", run: func(*mdb.Debugger, []string) error { return errQuit }},
}

// dispatchRegister fans `register <sub> ...` out to the sub-command
// (dump/read/write) the way the closed command table describes it: the
// interactive command is two words, not a single dispatcher name.
func dispatchRegister(db *mdb.Debugger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("register: expected a sub-command (dump, read, write)")
	}
	switch args[0] {
	case "dump":
		return mdb.RegisterDump(db, args[1:])
	case "read":
		return mdb.RegisterRead(db, args[1:])
	case "write":
		return mdb.RegisterWrite(db, args[1:])
	default:
		return fmt.Errorf("register: unknown sub-command %q", args[0])
	}
}

func dispatchMemory(db *mdb.Debugger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("memory: expected a sub-command (read, write)")
	}
	switch args[0] {
	case "read":
		return mdb.MemoryRead(db, args[1:])
	case "write":
		return mdb.MemoryWrite(db, args[1:])
	default:
		return fmt.Errorf("memory: unknown sub-command %q", args[0])
	}
}

func main() {
	pid := 0
	flag.IntVar(&pid, "p", 0, "attach to an already-running process pid")
	flag.Parse()
	args := flag.Args()

	var db *mdb.Debugger
	var err error

	switch {
	case pid != 0:
		if len(args) != 0 {
			fmt.Fprintln(os.Stderr, "unexpected arguments with -p")
			os.Exit(-1)
		}
		db, err = mdb.AttachTo(pid)

	case len(args) == 0:
		fmt.Fprintln(os.Stderr, "usage: mdb <program> [args...]")
		os.Exit(-1)

	default:
		db, err = mdb.StartCmdAndAttachTo(args[0], args[1:]...)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}

	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	fmt.Println("Started debugging process", db.Pid)
	fmt.Println("Press <Ctrl+d> to quit")

	rl, err := readline.New("mdb> ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		if line == "" {
			continue
		}
		lastLine = line

		fields := strings.Fields(line)
		if err := dispatch(db, fields); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Println("Exited from mini debugger")
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

// dispatch resolves fields[0] against the command table by prefix match:
// the table is a closed set, matched by literal prefix, never
// plugin-extensible. The first command in table order whose name starts
// with fields[0] runs, so a prefix shared by several commands (such as
// "s") selects the earliest of them. An unmatched prefix is reported to
// standard error without touching the tracee.
func dispatch(db *mdb.Debugger, fields []string) error {
	for _, cmd := range commands {
		if strings.HasPrefix(cmd.name, fields[0]) {
			return cmd.run(db, fields[1:])
		}
	}
	return fmt.Errorf("unknown command: %s", fields[0])
}
