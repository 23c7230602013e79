package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"wordvm/lexer"
)

type tokensCmd struct{}

func (*tokensCmd) Name() string { return "tokens" }

func (*tokensCmd) Synopsis() string { return "Show the lexed token stream of the given program." }

func (*tokensCmd) Usage() string {
	return `tokens <source_file>:
Lex the given source file and print its token stream, one token per line.
`
}

func (*tokensCmd) SetFlags(f *flag.FlagSet) {}

func (*tokensCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
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

		for _, tok := range tokens {
			fmt.Printf("%4d  %-10s %s\n", tok.Line, tok.Kind, tok.Literal)
		}
	}
	return subcommands.ExitSuccess
}
