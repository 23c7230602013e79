// Package compiler is the assembler: it walks the token stream produced by
// the lexer one line at a time, builds a label table, encodes each
// instruction into one or two 16-bit words, and back-patches forward label
// references once every label is known.
//
// The approach to labels mirrors a classic single-pass-with-patch-list
// assembler: every time a label reference is encountered, whether or not its
// definition has been seen yet, a placeholder word is emitted and its index
// is recorded in the patch list alongside the label name. Once the whole token stream has
// been consumed, the patch list is replayed against the now-complete label
// table and every placeholder is rewritten with the resolved address.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"wordvm/opcode"
	"wordvm/token"
)

// maxWords is the largest bytecode program this assembler will emit - a
// program counter is a 16-bit word index, so it can never address more.
const maxWords = 65536

// SyntaxError is a fatal assembly-time error: wrong operand shape, unknown
// mnemonic or register, an out-of-range literal, a duplicate or undefined
// label, and so on. It implies exit code 66.
type SyntaxError struct {
	Line int
	Msg  string

	// cause is set when Msg was derived from a lower-level parse failure
	// (e.g. strconv rejecting a malformed literal). It carries a
	// github.com/pkg/errors stack trace that Unwrap exposes to a caller
	// that wants more than the one-line diagnostic - see cmd/wordvm's
	// WORDVM_TRACE-gated reporting.
	cause error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("[Compiler][Line %d]: %s", e.Line, e.Msg)
}

// ExitCode satisfies the driver's generic exit-code lookup.
func (e *SyntaxError) ExitCode() int { return 66 }

// Unwrap exposes the underlying parse failure, if any, for callers that
// want a stack trace beyond the one-line diagnostic Error() renders.
func (e *SyntaxError) Unwrap() error { return e.cause }

// CapacityError is raised when the assembled program would exceed maxWords
// words. It implies exit code 67.
type CapacityError struct {
	Msg string
}

func (e *CapacityError) Error() string { return fmt.Sprintf("[Compiler]: %s", e.Msg) }

// ExitCode satisfies the driver's generic exit-code lookup.
func (e *CapacityError) ExitCode() int { return 67 }

type labelEntry struct {
	addr int
	line int
}

type patchEntry struct {
	name  string
	index int
	line  int
}

type assembler struct {
	tokens  []token.Token
	idx     int
	code    []uint16
	labels  map[string]labelEntry
	patches []patchEntry
}

// Assemble consumes a token stream ending in token.End and returns the
// encoded program, or the first fatal SyntaxError/CapacityError.
func Assemble(tokens []token.Token) ([]uint16, error) {
	a := &assembler{tokens: tokens, labels: make(map[string]labelEntry)}
	if err := a.run(); err != nil {
		return nil, err
	}
	// a nil slice and a zero-length non-nil slice both mean "no code"; a
	// non-nil slice here keeps callers from needing a nil check.
	if a.code == nil {
		a.code = []uint16{}
	}
	return a.code, nil
}

func (a *assembler) cur() token.Token { return a.tokens[a.idx] }

func (a *assembler) run() error {
	for a.cur().Kind != token.End {
		line := a.cur().Line

		for a.cur().Kind == token.Label && a.cur().IsLabelDef() && a.cur().Line == line {
			if err := a.addLabel(labelName(a.cur().Literal), a.cur().Line); err != nil {
				return err
			}
			a.idx++
			if a.cur().Kind == token.End {
				break
			}
		}
		if a.cur().Kind == token.End {
			break
		}
		if a.cur().Line != line {
			continue
		}
		if a.cur().Kind != token.Op {
			return &SyntaxError{Line: a.cur().Line, Msg: fmt.Sprintf("Unexpected token '%s'", a.cur().Literal)}
		}

		opTok := a.cur()
		a.idx++

		var operands []token.Token
		for a.cur().Kind != token.End && a.cur().Line == line {
			if len(operands) >= 3 {
				return &SyntaxError{Line: a.cur().Line, Msg: "Too many operands"}
			}
			operands = append(operands, a.cur())
			a.idx++
		}

		if err := a.compileInstruction(opTok, operands); err != nil {
			return err
		}
	}

	return a.patchLabels()
}

func (a *assembler) addLabel(name string, line int) error {
	if _, exists := a.labels[name]; exists {
		return &SyntaxError{Line: line, Msg: fmt.Sprintf("Duplicate label '%s'", name)}
	}
	a.labels[name] = labelEntry{addr: len(a.code), line: line}
	return nil
}

func (a *assembler) emit(word uint16) error {
	if len(a.code) >= maxWords {
		return &CapacityError{Msg: fmt.Sprintf("Bytecode size exceeds maximum of %d words", maxWords)}
	}
	a.code = append(a.code, word)
	return nil
}

func (a *assembler) patchLabels() error {
	for _, p := range a.patches {
		entry, ok := a.labels[p.name]
		if !ok {
			return &SyntaxError{Line: p.line, Msg: fmt.Sprintf("Undefined label '%s'", p.name)}
		}
		if entry.addr >= maxWords {
			return &SyntaxError{Line: p.line, Msg: fmt.Sprintf("Label '%s' address out of range", p.name)}
		}
		a.code[p.index] = uint16(entry.addr)
	}
	return nil
}

// compileInstruction dispatches on the opcode's operand shape per the
// mnemonic encoding table and emits the resulting word(s).
func (a *assembler) compileInstruction(opTok token.Token, operands []token.Token) error {
	op, ok := opcode.ParseOpcode(opTok.Literal)
	if !ok {
		return &SyntaxError{Line: opTok.Line, Msg: fmt.Sprintf("Unknown opcode '%s'", opTok.Literal)}
	}
	line := opTok.Line

	switch op {
	case opcode.MOV:
		if len(operands) != 2 {
			return &SyntaxError{Line: line, Msg: "MOV expects 2 operands"}
		}
		if operands[0].Kind != token.Register {
			return &SyntaxError{Line: operands[0].Line, Msg: "MOV destination must be a register"}
		}
		dest, err := parseRegisterToken(operands[0])
		if err != nil {
			return err
		}
		switch operands[1].Kind {
		case token.Register:
			src, err := parseRegisterToken(operands[1])
			if err != nil {
				return err
			}
			return a.emit(opcode.Encode(op, int(dest), int(src)))
		case token.Immediate:
			imm, err := parseImmediateToken(operands[1])
			if err != nil {
				return err
			}
			if err := a.emit(opcode.Encode(op, int(dest), opcode.FieldImmediate)); err != nil {
				return err
			}
			return a.emit(imm)
		default:
			return &SyntaxError{Line: operands[1].Line, Msg: "MOV source must be register or immediate"}
		}

	case opcode.LD:
		if len(operands) != 2 || operands[0].Kind != token.Register || operands[1].Kind != token.Address {
			return &SyntaxError{Line: line, Msg: "LD syntax is 'LD <reg>, [addr]'"}
		}
		dest, err := parseRegisterToken(operands[0])
		if err != nil {
			return err
		}
		addr, err := parseAddressToken(operands[1])
		if err != nil {
			return err
		}
		if err := a.emit(opcode.Encode(op, int(dest), opcode.FieldImmediate)); err != nil {
			return err
		}
		return a.emit(addr)

	case opcode.ST:
		if len(operands) != 2 || operands[0].Kind != token.Register || operands[1].Kind != token.Address {
			return &SyntaxError{Line: line, Msg: "ST syntax is 'ST <reg>, [addr]'"}
		}
		src, err := parseRegisterToken(operands[0])
		if err != nil {
			return err
		}
		addr, err := parseAddressToken(operands[1])
		if err != nil {
			return err
		}
		if err := a.emit(opcode.Encode(op, int(src), opcode.FieldImmediate)); err != nil {
			return err
		}
		return a.emit(addr)

	case opcode.PUSH, opcode.POP, opcode.ADD, opcode.SUB, opcode.MUL, opcode.DIV,
		opcode.AND, opcode.OR, opcode.XOR, opcode.PRN:
		if len(operands) != 1 {
			return &SyntaxError{Line: line, Msg: "Instruction expects 1 operand"}
		}
		if operands[0].Kind != token.Register {
			return &SyntaxError{Line: operands[0].Line, Msg: "Operand must be a register"}
		}
		reg, err := parseRegisterToken(operands[0])
		if err != nil {
			return err
		}
		if op == opcode.PRN && reg != opcode.ACC {
			return &SyntaxError{Line: operands[0].Line, Msg: "PRN expects ACC register"}
		}
		return a.emit(opcode.Encode(op, int(reg), opcode.FieldNone))

	case opcode.INC, opcode.DEC, opcode.CLR, opcode.NOT, opcode.HLT, opcode.NOP:
		if len(operands) != 0 {
			return &SyntaxError{Line: line, Msg: "Instruction does not take operands"}
		}
		return a.emit(opcode.Encode(op, opcode.FieldNone, opcode.FieldNone))

	case opcode.JMP, opcode.JEZ, opcode.JLZ, opcode.JGZ:
		if len(operands) != 1 {
			return &SyntaxError{Line: line, Msg: "Jump instruction expects 1 operand"}
		}
		if operands[0].Kind != token.Label || operands[0].IsLabelDef() {
			return &SyntaxError{Line: operands[0].Line, Msg: "Jump target must be a label"}
		}
		if err := a.emit(opcode.Encode(op, opcode.FieldImmediate, opcode.FieldNone)); err != nil {
			return err
		}
		patchIndex := len(a.code)
		if err := a.emit(0); err != nil {
			return err
		}
		a.patches = append(a.patches, patchEntry{
			name:  strings.ToUpper(operands[0].Literal),
			index: patchIndex,
			line:  operands[0].Line,
		})
		return nil

	default:
		return &SyntaxError{Line: line, Msg: "Unhandled opcode"}
	}
}

// labelName strips the "@" prefix and ":" suffix from a label declaration's
// lexeme and upper-cases it.
func labelName(lexeme string) string {
	s := strings.TrimPrefix(lexeme, "@")
	s = strings.TrimSuffix(s, ":")
	return strings.ToUpper(s)
}

func parseRegisterToken(tok token.Token) (opcode.Register, error) {
	reg, ok := opcode.ParseRegister(tok.Literal)
	if !ok {
		return 0, &SyntaxError{Line: tok.Line, Msg: fmt.Sprintf("Unknown register '%s'", tok.Literal)}
	}
	return reg, nil
}

// parseImmediateToken extracts the signed value of a "#..." literal and
// stores it as the low-16-bit two's complement word the VM will read back.
func parseImmediateToken(tok token.Token) (uint16, error) {
	text := strings.TrimPrefix(tok.Literal, "#")

	negative := false
	if len(text) > 0 && (text[0] == '+' || text[0] == '-') {
		negative = text[0] == '-'
		text = text[1:]
	}

	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		base = 16
		text = text[2:]
	}

	value, err := strconv.ParseInt(text, base, 64)
	if err != nil {
		wrapped := errors.Wrapf(err, "invalid immediate literal '%s'", tok.Literal)
		return 0, &SyntaxError{Line: tok.Line, Msg: wrapped.Error(), cause: wrapped}
	}
	if negative {
		value = -value
	}
	if value < -32768 || value > 65535 {
		return 0, &SyntaxError{Line: tok.Line, Msg: fmt.Sprintf("Immediate literal '%s' out of range", tok.Literal)}
	}
	if value < 0 {
		value += 65536
	}
	return uint16(value), nil
}

// parseAddressToken extracts the 0..65535 address inside a "[...]" literal.
func parseAddressToken(tok token.Token) (uint16, error) {
	lexeme := tok.Literal
	if len(lexeme) < 2 || lexeme[0] != '[' || lexeme[len(lexeme)-1] != ']' {
		return 0, &SyntaxError{Line: tok.Line, Msg: fmt.Sprintf("Invalid memory address '%s'", lexeme)}
	}
	inner := lexeme[1 : len(lexeme)-1]

	base := 10
	if strings.HasPrefix(inner, "0x") || strings.HasPrefix(inner, "0X") {
		base = 16
		inner = inner[2:]
	}

	value, err := strconv.ParseInt(inner, base, 64)
	if err != nil {
		wrapped := errors.Wrapf(err, "invalid memory address '%s'", lexeme)
		return 0, &SyntaxError{Line: tok.Line, Msg: wrapped.Error(), cause: wrapped}
	}
	if value < 0 || value >= maxWords {
		return 0, &SyntaxError{Line: tok.Line, Msg: fmt.Sprintf("Memory address '%s' out of range", lexeme)}
	}
	return uint16(value), nil
}
