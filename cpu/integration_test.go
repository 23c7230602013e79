package cpu

import (
	"bufio"
	"bytes"
	"os"
	"testing"

	"wordvm/compiler"
	"wordvm/lexer"
	"wordvm/opcode"
)

// assembleFixture runs a testdata source file through the lexer and
// assembler, the way cmd/wordvm's driver does before handing off to Run.
func assembleFixture(t *testing.T, name string) []uint16 {
	t.Helper()
	source, err := os.ReadFile("../testdata/" + name)
	if err != nil {
		t.Fatalf("reading fixture %s: %v", name, err)
	}
	tokens, err := lexer.Lex(source)
	if err != nil {
		t.Fatalf("lexing fixture %s: %v", name, err)
	}
	code, err := compiler.Assemble(tokens)
	if err != nil {
		t.Fatalf("assembling fixture %s: %v", name, err)
	}
	return code
}

func TestScenarioS1PrintOneCharacter(t *testing.T) {
	code := assembleFixture(t, "s1_print_char.asm")
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)
	if err := Run(code, out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if buf.String() != "H" {
		t.Errorf("stdout = %q, want %q", buf.String(), "H")
	}
}

func TestScenarioS2LoopTerminates(t *testing.T) {
	code := assembleFixture(t, "s2_loop_branch.asm")
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)
	if err := Run(code, out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestScenarioS3MemoryMappedStore(t *testing.T) {
	code := assembleFixture(t, "s3_mmio_store.asm")
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)
	if err := Run(code, out); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if buf.String() != "A" {
		t.Errorf("stdout = %q, want %q", buf.String(), "A")
	}
}

func TestScenarioS4StackDiscipline(t *testing.T) {
	code := assembleFixture(t, "s4_stack_discipline.asm")
	c := &cpu{code: code, out: bufio.NewWriter(&bytes.Buffer{})}
	if err := c.run(); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}
	if c.regs[opcode.R0] != 7 {
		t.Errorf("R0 = %d, want 7", c.regs[opcode.R0])
	}
	if c.stackCount != 0 {
		t.Errorf("stackCount = %d, want 0", c.stackCount)
	}
}

func TestScenarioS5DivisionByZeroIsFatal(t *testing.T) {
	code := assembleFixture(t, "s5_div_by_zero.asm")
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)
	err := Run(code, out)
	if err == nil {
		t.Fatal("expected a division-by-zero fault")
	}
	if buf.Len() != 0 {
		t.Errorf("stdout = %q, want empty", buf.String())
	}
	fault, ok := err.(*Fault)
	if !ok {
		t.Fatalf("error is %T, want *cpu.Fault", err)
	}
	if fault.ExitCode() != 68 {
		t.Errorf("ExitCode() = %d, want 68", fault.ExitCode())
	}
	if got := err.Error(); got == "" {
		t.Error("fault message should not be empty")
	}
}

func TestScenarioS6UndefinedLabelFailsAtAssembleTime(t *testing.T) {
	source, err := os.ReadFile("../testdata/s6_undefined_label.asm")
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	tokens, err := lexer.Lex(source)
	if err != nil {
		t.Fatalf("lexing fixture: %v", err)
	}
	_, err = compiler.Assemble(tokens)
	if err == nil {
		t.Fatal("expected an assemble-time error for an undefined label")
	}
	synErr, ok := err.(*compiler.SyntaxError)
	if !ok {
		t.Fatalf("error is %T, want *compiler.SyntaxError", err)
	}
	if synErr.Line != 1 {
		t.Errorf("Line = %d, want 1", synErr.Line)
	}
	if want := "[Compiler][Line 1]: Undefined label 'MISSING'"; synErr.Error() != want {
		t.Errorf("Error() = %q, want %q", synErr.Error(), want)
	}
	if synErr.ExitCode() != 66 {
		t.Errorf("ExitCode() = %d, want 66", synErr.ExitCode())
	}
}
