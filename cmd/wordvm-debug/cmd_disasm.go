package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"wordvm/compiler"
	"wordvm/lexer"
	"wordvm/opcode"
)

type disasmCmd struct{}

func (*disasmCmd) Name() string { return "disasm" }

func (*disasmCmd) Synopsis() string { return "Assemble the given program and print its bytecode." }

func (*disasmCmd) Usage() string {
	return `disasm <source_file>:
Assemble the given source file and print one decoded instruction word per
line, in the form: <address> <opcode> <dest> <src> [<operand word>].
`
}

func (*disasmCmd) SetFlags(f *flag.FlagSet) {}

func (*disasmCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	for _, file := range f.Args() {
		source, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading %s: %s\n", file, err)
			return subcommands.ExitFailure
		}

		tokens, err := lexer.Lex(source)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}

		code, err := compiler.Assemble(tokens)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}

		printDisassembly(code)
	}
	return subcommands.ExitSuccess
}

// printDisassembly walks the encoded program and prints each instruction,
// consuming a second word whenever a field is opcode.FieldImmediate - the
// same two-word shape the VM's fetch loop consumes at run time.
func printDisassembly(code []uint16) {
	for i := 0; i < len(code); i++ {
		addr := i
		op, dest, src := opcode.Decode(code[i])

		operand := ""
		if dest == opcode.FieldImmediate || src == opcode.FieldImmediate {
			i++
			if i < len(code) {
				operand = fmt.Sprintf(" 0x%04X", code[i])
			}
		}

		fmt.Printf("%05d  %-4s %-4s %-4s%s\n", addr, op, fieldName(dest), fieldName(src), operand)
	}
}

func fieldName(field int) string {
	switch field {
	case opcode.FieldNone:
		return "-"
	case opcode.FieldImmediate:
		return "imm"
	default:
		if reg := opcode.Register(field); reg <= opcode.ACC {
			return reg.String()
		}
		return fmt.Sprintf("%d", field)
	}
}
