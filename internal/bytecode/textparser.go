package bytecode

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// Compile translates one PScript text program into its binary token stream.
func Compile(src string) ([]byte, error) {
	c := &compiler{src: []rune(src)}
	out, err := c.compileProgram(false)
	if err != nil {
		return nil, err
	}
	c.skipWS()
	if c.pos < len(c.src) {
		return nil, fmt.Errorf("bytecode: unexpected trailing input at offset %d", c.pos)
	}
	return out, nil
}

// CompilePrograms splits src on top-level '.' separators into independent
// programs and compiles each one. A top-level '.' is one that appears
// outside of any string literal, comment, or bracketed block and is not a
// decimal point inside a numeric literal — this mirrors
// the original engine's multi-program source files.
func CompilePrograms(src string) ([][]byte, error) {
	c := &compiler{src: []rune(src)}
	var progs [][]byte
	for {
		c.skipWS()
		if c.pos >= len(c.src) {
			break
		}
		prog, err := c.compileProgram(true)
		if err != nil {
			return nil, err
		}
		progs = append(progs, prog)
		c.skipWS()
		if c.pos < len(c.src) && c.src[c.pos] == '.' {
			c.pos++
			continue
		}
		break
	}
	return progs, nil
}

type compiler struct {
	src []rune
	pos int
}

func (c *compiler) peek() (rune, bool) {
	if c.pos >= len(c.src) {
		return 0, false
	}
	return c.src[c.pos], true
}

func (c *compiler) skipWS() {
	for c.pos < len(c.src) {
		r := c.src[c.pos]
		if unicode.IsSpace(r) {
			c.pos++
			continue
		}
		if r == '(' {
			c.skipComment()
			continue
		}
		break
	}
}

func (c *compiler) skipComment() {
	depth := 0
	for c.pos < len(c.src) {
		r := c.src[c.pos]
		c.pos++
		if r == '(' {
			depth++
		} else if r == ')' {
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

// compileProgram compiles terms until EOF, a closing ']' (left for the
// caller), or (if stopAtDot) a top-level '.'.
func (c *compiler) compileProgram(stopAtDot bool) ([]byte, error) {
	var out []byte
	for {
		c.skipWS()
		r, ok := c.peek()
		if !ok || r == ']' {
			return out, nil
		}
		if stopAtDot && r == '.' {
			return out, nil
		}
		term, err := c.compileTerm()
		if err != nil {
			return nil, err
		}
		out = append(out, term...)
	}
}

func (c *compiler) compileTerm() ([]byte, error) {
	r, _ := c.peek()
	switch {
	case r == '"':
		return c.compileString()
	case r == '[':
		return c.compileBracket()
	case r == '`':
		c.pos++
		return c.compileTerm()
	default:
		return c.compileWord()
	}
}

func (c *compiler) compileString() ([]byte, error) {
	c.pos++ // consume opening quote
	var sb []byte
	for {
		r, ok := c.peek()
		if !ok {
			return nil, fmt.Errorf("bytecode: unterminated string literal")
		}
		c.pos++
		if r == '"' {
			break
		}
		if r == '\\' {
			esc, ok := c.peek()
			if !ok {
				return nil, fmt.Errorf("bytecode: unterminated escape in string literal")
			}
			c.pos++
			switch esc {
			case '"':
				sb = append(sb, '"')
			case 'n':
				sb = append(sb, '\n')
			case '\\':
				sb = append(sb, '\\')
			default:
				return nil, fmt.Errorf("bytecode: unknown escape \\%c", esc)
			}
			continue
		}
		sb = append(sb, string(r)...)
	}
	return EncodeData(nil, sb), nil
}

// compileBracket compiles a `[ ... ]` wrapped sub-program into a single
// data-push token. When the block contains no backtick splices the
// sub-program is compiled once and wrapped statically. When it contains
// splices, each static run is pushed as a literal, each spliced term is
// compiled and WRAPped individually, and the pieces are CONCATenated at
// runtime, so the final blob is assembled when the outer program executes
// rather than at compile time.
func (c *compiler) compileBracket() ([]byte, error) {
	c.pos++ // consume '['
	start := c.pos
	hasSplice := c.blockHasSplice()
	c.pos = start

	if !hasSplice {
		inner, err := c.compileProgram(false)
		if err != nil {
			return nil, err
		}
		if err := c.expectClose(); err != nil {
			return nil, err
		}
		return EncodeData(nil, inner), nil
	}
	return c.compileSplicedBracket()
}

// blockHasSplice scans ahead, skipping string literals, to see whether a
// backtick appears before the matching close bracket. Comments are not
// skipped, so a backtick inside a comment counts as a splice.
func (c *compiler) blockHasSplice() bool {
	depth := 0
	for i := c.pos; i < len(c.src); i++ {
		switch c.src[i] {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return false
			}
			depth--
		case '`':
			if depth == 0 {
				return true
			}
		case '"':
			i++
			for i < len(c.src) && c.src[i] != '"' {
				if c.src[i] == '\\' {
					i++
				}
				i++
			}
		}
	}
	return false
}

func (c *compiler) expectClose() error {
	c.skipWS()
	r, ok := c.peek()
	if !ok || r != ']' {
		return fmt.Errorf("bytecode: expected ']'")
	}
	c.pos++
	return nil
}

func (c *compiler) compileSplicedBracket() ([]byte, error) {
	var out []byte
	var staticRun []byte
	segments := 0

	flushStatic := func() {
		out = append(out, EncodeData(nil, staticRun)...)
		staticRun = nil
		segments++
	}

	for {
		c.skipWS()
		r, ok := c.peek()
		if !ok {
			return nil, fmt.Errorf("bytecode: unterminated spliced block")
		}
		if r == ']' {
			break
		}
		if r == '`' {
			if len(staticRun) > 0 {
				flushStatic()
			}
			c.pos++
			term, err := c.compileTerm()
			if err != nil {
				return nil, err
			}
			out = append(out, term...)
			out = append(out, encodeWrapOne()...)
			segments++
			continue
		}
		term, err := c.compileTerm()
		if err != nil {
			return nil, err
		}
		staticRun = append(staticRun, term...)
	}
	if len(staticRun) > 0 {
		flushStatic()
	}
	if err := c.expectClose(); err != nil {
		return nil, err
	}
	for i := 1; i < segments; i++ {
		out = append(out, EncodeInstruction(nil, []byte("CONCAT"), false)...)
	}
	return out, nil
}

// encodeWrapOne emits `1 WRAP`: push the unsigned literal 1, then WRAP,
// turning whatever single value is on top of the stack into a one-element
// length-prefixed blob.
func encodeWrapOne() []byte {
	var b []byte
	b = EncodeData(b, []byte{1})
	b = EncodeInstruction(b, []byte("WRAP"), false)
	return b
}

func isWordRune(r rune) bool {
	return !unicode.IsSpace(r) && r != '[' && r != ']' && r != '(' && r != ')' && r != '"' && r != '`' && r != '.'
}

func (c *compiler) compileWord() ([]byte, error) {
	start := c.pos
	for c.pos < len(c.src) {
		r := c.src[c.pos]
		// A '.' followed by a digit inside a numeric literal is a decimal
		// point (1.3f32), not a program separator.
		if r == '.' && c.pos > start && c.pos+1 < len(c.src) && unicode.IsDigit(c.src[c.pos+1]) &&
			isNumericLiteral(string(c.src[start:c.pos])) {
			c.pos++
			continue
		}
		if !isWordRune(r) {
			break
		}
		c.pos++
	}
	if c.pos == start {
		return nil, fmt.Errorf("bytecode: unexpected character %q", string(c.src[c.pos]))
	}
	word := string(c.src[start:c.pos])
	return compileLiteralOrWord(word)
}

// compileLiteralOrWord classifies a bare word as a hex literal, a numeric
// literal (with optional sign and/or sized-type suffix), or an instruction
// name, and emits the corresponding binary token(s).
func compileLiteralOrWord(word string) ([]byte, error) {
	if strings.HasPrefix(word, "0x") || strings.HasPrefix(word, "0X") {
		return compileHex(word[2:])
	}
	if isNumericLiteral(word) {
		return compileNumeric(word)
	}
	return EncodeInstruction(nil, []byte(word), false), nil
}

func compileHex(hex string) ([]byte, error) {
	if len(hex)%2 != 0 {
		hex = "0" + hex
	}
	buf := make([]byte, len(hex)/2)
	for i := 0; i < len(buf); i++ {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bytecode: invalid hex literal: %w", err)
		}
		buf[i] = byte(v)
	}
	return EncodeData(nil, buf), nil
}

var sizedSuffixes = map[string]int{
	"u8": 1, "i8": 1,
	"u16": 2, "i16": 2,
	"u32": 4, "i32": 4,
	"u64": 8, "i64": 8,
}

func isNumericLiteral(word string) bool {
	if word == "" {
		return false
	}
	r := word[0]
	return r == '+' || r == '-' || (r >= '0' && r <= '9')
}

func compileNumeric(word string) ([]byte, error) {
	if strings.HasSuffix(word, "f32") {
		return compileFloat(strings.TrimSuffix(word, "f32"), 32)
	}
	if strings.HasSuffix(word, "f64") {
		return compileFloat(strings.TrimSuffix(word, "f64"), 64)
	}
	for suf, width := range sizedSuffixes {
		if strings.HasSuffix(word, suf) {
			return compileSized(strings.TrimSuffix(word, suf), width, suf[0] == 'i')
		}
	}
	if word[0] == '+' || word[0] == '-' {
		return compileSint(word)
	}
	return compileUint(word)
}

func compileUint(word string) ([]byte, error) {
	v, ok := new(big.Int).SetString(word, 10)
	if !ok {
		return nil, fmt.Errorf("bytecode: invalid integer literal %q", word)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("bytecode: unsigned literal %q must not be negative", word)
	}
	mag := v.Bytes()
	if len(mag) == 0 {
		mag = []byte{0}
	}
	return EncodeData(nil, mag), nil
}

func compileSint(word string) ([]byte, error) {
	neg := word[0] == '-'
	mant := word[1:]
	v, ok := new(big.Int).SetString(mant, 10)
	if !ok {
		return nil, fmt.Errorf("bytecode: invalid integer literal %q", word)
	}
	if neg {
		v.Neg(v)
	}
	return EncodeData(nil, EncodeSint(v)), nil
}

// EncodeSint encodes an arbitrary-precision signed integer as a sign byte
// (0x00 negative, 0x01 non-negative) followed by a two's-complement
// magnitude: for non-negative values the magnitude is the plain big-endian
// bytes; for negative values it is the big-endian bytes of the absolute
// value, bit-flipped and incremented by one (with carry).
func EncodeSint(v *big.Int) []byte {
	if v.Sign() >= 0 {
		mag := v.Bytes()
		if len(mag) == 0 {
			mag = []byte{0}
		}
		return append([]byte{0x01}, mag...)
	}
	abs := new(big.Int).Abs(v)
	mag := abs.Bytes()
	if len(mag) == 0 {
		mag = []byte{0}
	}
	twos := make([]byte, len(mag))
	for i, b := range mag {
		twos[i] = ^b
	}
	carry := byte(1)
	for i := len(twos) - 1; i >= 0 && carry > 0; i-- {
		sum := uint16(twos[i]) + uint16(carry)
		twos[i] = byte(sum)
		carry = byte(sum >> 8)
	}
	return append([]byte{0x00}, twos...)
}

func compileSized(mant string, width int, signed bool) ([]byte, error) {
	v, ok := new(big.Int).SetString(mant, 10)
	if !ok {
		return nil, fmt.Errorf("bytecode: invalid sized integer literal %q", mant)
	}
	buf := make([]byte, width)
	if signed {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
		m := new(big.Int).Mod(v, mod)
		if m.Sign() < 0 {
			m.Add(m, mod)
		}
		b := m.Bytes()
		copy(buf[width-len(b):], b)
		buf[0] ^= 0x80
	} else {
		if v.Sign() < 0 {
			return nil, fmt.Errorf("bytecode: unsigned literal %q must not be negative", mant)
		}
		b := v.Bytes()
		if len(b) > width {
			return nil, fmt.Errorf("bytecode: literal %q overflows %d-byte width", mant, width)
		}
		copy(buf[width-len(b):], b)
	}
	return EncodeData(nil, buf), nil
}

func compileFloat(mant string, bits int) ([]byte, error) {
	f, err := strconv.ParseFloat(mant, bits)
	if err != nil {
		return nil, fmt.Errorf("bytecode: invalid float literal %q: %w", mant, err)
	}
	if f == 0 {
		f = 0 // normalise -0.0 to +0.0
	}
	var raw []byte
	if bits == 32 {
		raw = PackFloat32(float32(f))
	} else {
		raw = PackFloat64(f)
	}
	return EncodeData(nil, raw), nil
}
