package mdb

import (
	"bufio"
	"fmt"
	"os"
)

// PrintSourceWindow prints a context window of context lines above and
// below line in file, marking the focus line with "> " and every other
// line with "  ", bracketed by a top and bottom divider. Purely
// informational: it never touches tracee state.
func PrintSourceWindow(file string, line int, context int) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", file, err)
	}
	defer f.Close()

	start := line - context
	if start < 1 {
		start = 1
	}
	end := line + context

	scanner := bufio.NewScanner(f)
	current := 0

	fmt.Println("--------------------------------------------------")

	for scanner.Scan() {
		current++
		if current < start {
			continue
		}
		if current > end {
			break
		}

		prefix := "  "
		if current == line {
			prefix = "> "
		}
		fmt.Printf("%s%d\t%s\n", prefix, current, scanner.Text())
	}

	fmt.Println("--------------------------------------------------")

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read source file %s: %w", file, err)
	}

	return nil
}
