// Command wordvm is the primary driver: it reads a source file, runs it
// through the lexer, assembler, and VM in sequence, and propagates the
// first fatal error's exit code.
package main

import (
	"bufio"
	"fmt"
	"os"

	"wordvm/compiler"
	"wordvm/cpu"
	"wordvm/lexer"
)

// exitCoder is implemented by every typed error the core packages return.
type exitCoder interface {
	ExitCode() int
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s <source_file>\n", progName())
		os.Exit(0)
	}

	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		reportCause(err)
		os.Exit(exitCodeOf(err))
	}
}

// reportCause prints the stack trace behind a wrapped parse failure when
// WORDVM_TRACE is set - the same opt-in variable that gates the VM's
// instruction trace, extended here to the assembler's own diagnostics.
func reportCause(err error) {
	if os.Getenv("WORDVM_TRACE") == "" {
		return
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		if cause := u.Unwrap(); cause != nil {
			fmt.Fprintf(os.Stderr, "%+v\n", cause)
		}
	}
}

func run(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return ioError{err}
	}

	tokens, err := lexer.Lex(source)
	if err != nil {
		return err
	}

	code, err := compiler.Assemble(tokens)
	if err != nil {
		return err
	}

	out := bufio.NewWriter(os.Stdout)
	return cpu.Run(code, out)
}

// ioError wraps a source-file read failure. It is the only fatal condition
// this driver represents itself rather than letting a core package raise.
type ioError struct{ cause error }

func (e ioError) Error() string { return fmt.Sprintf("cannot read source file: %s", e.cause) }
func (e ioError) ExitCode() int { return 74 }

func exitCodeOf(err error) int {
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}

func progName() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return "wordvm"
}
