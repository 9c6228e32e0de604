package asm

import "fmt"

// OperandKind classifies a parsed operand per the grammar in
// SPEC_FULL.md §4.4: `[label ':'] [op operand {',' operand}*]`.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandImmediate                // '#' Number
	OperandNumber                   // bare Number (directive operands and control-transfer targets)
	OperandLabel                    // bare Identifier
	OperandIndirectReg               // '[' Register ']'
	OperandDirect                   // '[' '#' Number ']' or '[' Identifier ']'
)

// Operand is one resolved (syntactically, not yet symbolically) operand.
type Operand struct {
	Kind     OperandKind
	Reg      uint8
	Value    uint32
	Negative bool
	Label    string
	Line     int
}

// SourceLine is one parsed source line: at most one label, and either a
// directive or an instruction, never both with an instruction also
// carrying a directive.
type SourceLine struct {
	LineNo int
	Label  string // "" if this line defines no label

	// Directive is "" for an instruction line, else one of
	// ".ORG" / ".WORD" / ".STRING".
	Directive   string
	DirOperand  *Operand // .ORG / .WORD argument
	DirString   string   // .STRING decoded payload

	Mnemonic string // "" for a directive or label-only line
	Operands []Operand
}

// Parse converts lexed lines into SourceLine records, per the single-line
// grammar of SPEC_FULL.md §4.4. It performs no symbol resolution.
func Parse(lexed [][]Token) ([]SourceLine, error) {
	lines := make([]SourceLine, 0, len(lexed))
	for _, toks := range lexed {
		ln, err := parseLine(toks)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}
	return lines, nil
}

func parseLine(toks []Token) (SourceLine, error) {
	lineNo := toks[0].Line
	ln := SourceLine{LineNo: lineNo}
	i := 0

	if len(toks) >= 2 && toks[0].Kind == TokIdentifier && toks[1].Kind == TokColon {
		ln.Label = toks[0].Text
		i = 2
	}

	if i >= len(toks) {
		return ln, nil
	}

	if toks[i].Kind != TokIdentifier {
		return ln, parseErrf(lineNo, "expected mnemonic or directive, found %s", toks[i].Kind)
	}
	word := toks[i].Text
	i++

	if len(word) > 0 && word[0] == '.' {
		return parseDirective(ln, word, toks, i, lineNo)
	}

	ln.Mnemonic = word
	for i < len(toks) {
		op, next, err := parseOperand(toks, i)
		if err != nil {
			return SourceLine{}, err
		}
		ln.Operands = append(ln.Operands, op)
		i = next
		if i < len(toks) && toks[i].Kind == TokComma {
			i++
			if i >= len(toks) {
				return SourceLine{}, parseErrf(lineNo, "missing operand after ','")
			}
			continue
		}
	}
	return ln, nil
}

func parseDirective(ln SourceLine, word string, toks []Token, i int, lineNo int) (SourceLine, error) {
	ln.Directive = word
	switch word {
	case ".ORG", ".WORD":
		if i >= len(toks) {
			return SourceLine{}, parseErrf(lineNo, "%s requires an operand", word)
		}
		op, next, err := parseOperand(toks, i)
		if err != nil {
			return SourceLine{}, err
		}
		if op.Kind != OperandNumber && op.Kind != OperandLabel {
			return SourceLine{}, parseErrf(lineNo, "%s operand must be a number or label", word)
		}
		if next != len(toks) {
			return SourceLine{}, parseErrf(lineNo, "unexpected trailing tokens after %s operand", word)
		}
		ln.DirOperand = &op
		return ln, nil

	case ".STRING":
		if i >= len(toks) || toks[i].Kind != TokString {
			return SourceLine{}, parseErrf(lineNo, ".STRING requires a string literal operand")
		}
		ln.DirString = toks[i].Str
		if i+1 != len(toks) {
			return SourceLine{}, parseErrf(lineNo, "unexpected trailing tokens after .STRING operand")
		}
		return ln, nil

	default:
		return SourceLine{}, semErrf(lineNo, "unknown directive %s", word)
	}
}

func parseOperand(toks []Token, i int) (Operand, int, error) {
	t := toks[i]
	switch t.Kind {
	case TokRegister:
		return Operand{Kind: OperandRegister, Reg: uint8(t.Value), Line: t.Line}, i + 1, nil

	case TokHash:
		i++
		if i >= len(toks) || (toks[i].Kind != TokNumber && toks[i].Kind != TokChar) {
			return Operand{}, 0, parseErrf(t.Line, "expected number after '#'")
		}
		n := toks[i]
		return Operand{Kind: OperandImmediate, Value: n.Value, Negative: n.Negative, Line: t.Line}, i + 1, nil

	case TokNumber, TokChar:
		return Operand{Kind: OperandNumber, Value: t.Value, Negative: t.Negative, Line: t.Line}, i + 1, nil

	case TokIdentifier:
		return Operand{Kind: OperandLabel, Label: t.Text, Line: t.Line}, i + 1, nil

	case TokLBracket:
		i++
		if i >= len(toks) {
			return Operand{}, 0, parseErrf(t.Line, "unterminated '[' operand")
		}
		switch toks[i].Kind {
		case TokRegister:
			reg := uint8(toks[i].Value)
			i++
			if i >= len(toks) || toks[i].Kind != TokRBracket {
				return Operand{}, 0, parseErrf(t.Line, "expected ']' after register")
			}
			return Operand{Kind: OperandIndirectReg, Reg: reg, Line: t.Line}, i + 1, nil

		case TokHash:
			i++
			if i >= len(toks) || (toks[i].Kind != TokNumber && toks[i].Kind != TokChar) {
				return Operand{}, 0, parseErrf(t.Line, "expected number after '#' in '[...]'")
			}
			n := toks[i]
			i++
			if i >= len(toks) || toks[i].Kind != TokRBracket {
				return Operand{}, 0, parseErrf(t.Line, "expected ']' after number")
			}
			return Operand{Kind: OperandDirect, Value: n.Value, Negative: n.Negative, Line: t.Line}, i + 1, nil

		case TokIdentifier:
			label := toks[i].Text
			i++
			if i >= len(toks) || toks[i].Kind != TokRBracket {
				return Operand{}, 0, parseErrf(t.Line, "expected ']' after identifier")
			}
			return Operand{Kind: OperandDirect, Label: label, Line: t.Line}, i + 1, nil

		default:
			return Operand{}, 0, parseErrf(t.Line, "unexpected token inside '[...]': %s", toks[i].Kind)
		}

	default:
		return Operand{}, 0, parseErrf(t.Line, "unexpected token %s in operand position", fmt.Sprint(t.Kind))
	}
}
