package opcode

import "testing"

func TestParseOpcodeCaseInsensitive(t *testing.T) {
	for _, name := range []string{"mov", "Mov", "MOV"} {
		op, ok := ParseOpcode(name)
		if !ok || op != MOV {
			t.Errorf("ParseOpcode(%q) = (%v, %v), want (MOV, true)", name, op, ok)
		}
	}
}

func TestParseOpcodeUnknown(t *testing.T) {
	if _, ok := ParseOpcode("FROB"); ok {
		t.Error("ParseOpcode(\"FROB\") = true, want false")
	}
}

func TestParseRegisterNames(t *testing.T) {
	cases := map[string]Register{
		"R0": R0, "r7": R7, "SP": SP, "pc": PC, "Acc": ACC,
	}
	for name, want := range cases {
		got, ok := ParseRegister(name)
		if !ok || got != want {
			t.Errorf("ParseRegister(%q) = (%v, %v), want (%v, true)", name, got, ok, want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		op        Opcode
		dest, src int
	}{
		{MOV, int(R0), FieldImmediate},
		{ADD, int(R3), FieldNone},
		{JMP, FieldImmediate, FieldNone},
		{HLT, FieldNone, FieldNone},
	}
	for _, c := range cases {
		word := Encode(c.op, c.dest, c.src)
		gotOp, gotDest, gotSrc := Decode(word)
		if gotOp != c.op || gotDest != c.dest || gotSrc != c.src {
			t.Errorf("Decode(Encode(%v, %d, %d)) = (%v, %d, %d)", c.op, c.dest, c.src, gotOp, gotDest, gotSrc)
		}
	}
}

func TestEncodeOpcodeOrdinalInLowSixBits(t *testing.T) {
	word := Encode(NOP, FieldNone, FieldNone)
	if op := (word >> OpcodeShift) & 0x3F; int(op) != int(NOP) {
		t.Errorf("opcode field = %d, want %d", op, NOP)
	}
	// the top bit of the 16-bit word is reserved zero.
	if word&0x8000 != 0 {
		t.Errorf("word %#04x sets the reserved top bit", word)
	}
}

func TestSentinelFieldValues(t *testing.T) {
	if FieldNone != 0x1F {
		t.Errorf("FieldNone = %#x, want 0x1F", FieldNone)
	}
	if FieldImmediate != 0x1E {
		t.Errorf("FieldImmediate = %#x, want 0x1E", FieldImmediate)
	}
}
