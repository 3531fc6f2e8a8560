package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// whitespace and delimiter character classes, §7.2.2 tables 1 and 2
const (
	spaceChars = "\x00\t\n\f\r "
	delimChars = "()<>[]{}/%"
)

func isSpace(c byte) bool { return strings.IndexByte(spaceChars, c) >= 0 }
func isDelim(c byte) bool { return strings.IndexByte(delimChars, c) >= 0 }

func isHexDigit(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// skipSpace returns the index of the first non-whitespace byte, or -1
// when slice holds nothing else.
func skipSpace(slice []byte) int {
	for i := 0; i < len(slice); i++ {
		if !isSpace(slice[i]) {
			return i
		}
	}
	return -1
}

// readToken returns the next run of regular characters and the index
// just past it. Leading whitespace is consumed; a delimiter ends the
// token without being part of it.
func readToken(slice []byte) ([]byte, int) {
	begin := skipSpace(slice)
	if begin < 0 {
		begin = 0
	}
	end := begin
	for end < len(slice) && !isSpace(slice[end]) && !isDelim(slice[end]) {
		end++
	}
	return slice[begin:end], end
}

// keyword consumes the next token and reports whether it equals word.
func keyword(slice []byte, word string) (int, bool) {
	tok, n := readToken(slice)
	return n, string(tok) == word
}

// ParseObject parses the next object in slice, returning the object
// and the number of bytes consumed. The leading byte selects the
// grammar rule; streams are recognized by the keyword following a
// dictionary.
func ParseObject(slice []byte) (Object, int, error) {
	at := skipSpace(slice)
	if at < 0 {
		return nil, 0, errors.New("expected a non-whitespace char")
	}

	var (
		obj Object
		n   int
		err error
	)

	switch c := slice[at]; {
	case c == 't' || c == 'f':
		obj, n, err = parseBoolean(slice[at:])
	case c == 'n':
		obj, n, err = parseNull(slice[at:])
	case c == '(':
		obj, n, err = parseLiteralString(slice[at:])
	case c == '/':
		obj, n, err = parseName(slice[at:])
	case c == '[':
		obj, n, err = parseArray(slice[at:])
	case c == '<':
		if at+1 < len(slice) && slice[at+1] == '<' {
			obj, n, err = parseDictionary(slice[at:])
			if err == nil {
				obj, n, err = attachStream(obj.(Dictionary), slice[at:], n)
			}
		} else {
			obj, n, err = parseHexadecimalString(slice[at:])
		}
	case c == '+' || c == '-' || c == '.' || ('0' <= c && c <= '9'):
		// an integer here may instead be the start of a reference
		if ref, rn, rerr := parseReference(slice[at:]); rerr == nil {
			return ref, at + rn, nil
		}
		obj, n, err = parseNumeric(slice[at:])
	default:
		return nil, at, fmt.Errorf("no object starts with %q", c)
	}

	return obj, at + n, err
}

// ParseIndirectObject parses an indirect object record
// ("id gen obj ... endobj") from the start of slice, consuming
// through the endobj keyword.
func ParseIndirectObject(slice []byte) (IndirectObject, int, error) {
	var io IndirectObject
	i := 0

	number, n, err := parseUint(slice)
	i += n
	if err != nil {
		return io, i, err
	}
	io.ObjectNumber = number

	generation, n, err := parseUint(slice[i:])
	i += n
	if err != nil {
		return io, i, err
	}
	io.GenerationNumber = generation

	n, ok := keyword(slice[i:], "obj")
	i += n
	if !ok {
		return io, i, errors.New("could not find 'obj'")
	}

	io.Object, n, err = ParseObject(slice[i:])
	i += n
	if err != nil {
		return io, i, err
	}

	n, ok = keyword(slice[i:], "endobj")
	i += n
	if !ok {
		return io, i, errors.New("could not find 'endobj'")
	}

	return io, i, nil
}

// attachStream checks for a stream body following a dictionary ending
// at slice[n:] and wraps the dictionary when one is present. §7.3.8
func attachStream(dict Dictionary, slice []byte, n int) (Object, int, error) {
	kn, ok := keyword(slice[n:], "stream")
	if !ok {
		return dict, n, nil
	}
	n += kn

	// the keyword is followed by CRLF or a lone LF, §7.3.8.1
	if n >= len(slice) {
		return dict, n, errors.New("expected end of line marker after 'stream'")
	}
	switch slice[n] {
	case '\r':
		n++
		if n >= len(slice) || slice[n] != '\n' {
			return dict, n + 1, errors.New("end of line marker cannot have only a carriage return")
		}
	case '\n':
	default:
		return dict, n + 1, errors.New("expected end of line marker after 'stream'")
	}
	n++

	body := slice[n:]
	length, ok := dict["Length"].(Integer)
	if !ok || int(length) > len(body) {
		// Length missing, indirect, or past the end of the data;
		// fall back to scanning for the endstream keyword
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			return dict, n, errors.New("could not find 'endstream'")
		}
		if end > 0 && body[end-1] == '\n' {
			end--
		}
		if end > 0 && body[end-1] == '\r' {
			end--
		}
		length = Integer(end)
	}

	stream := Stream{Dictionary: dict, Stream: body[:length]}
	n += int(length)

	kn, ok = keyword(slice[n:], "endstream")
	n += kn
	if !ok {
		return stream, n, errors.New("expected 'endstream'")
	}
	return stream, n, nil
}

func parseBoolean(slice []byte) (Object, int, error) {
	tok, n := readToken(slice)
	switch string(tok) {
	case "true":
		return Boolean(true), n, nil
	case "false":
		return Boolean(false), n, nil
	}
	return Boolean(false), 0, errors.New("not a boolean")
}

func parseNull(slice []byte) (Object, int, error) {
	if n, ok := keyword(slice, "null"); ok {
		return Null{}, n, nil
	}
	return Null{}, 0, errors.New("not a null")
}

// parseNumeric returns Integer unless the token contains a decimal
// point, in which case it returns Real. §7.3.3
func parseNumeric(slice []byte) (Object, int, error) {
	tok, n := readToken(slice)
	if bytes.IndexByte(tok, '.') < 0 {
		v, err := strconv.ParseInt(string(tok), 10, 0)
		return Integer(v), n, err
	}
	v, err := strconv.ParseFloat(string(tok), 64)
	if err != nil {
		return Real(0), n, err
	}
	return Real(v), n, nil
}

// parseUint reads an unsigned decimal token, as used by object and
// generation numbers.
func parseUint(slice []byte) (uint, int, error) {
	tok, n := readToken(slice)
	v, err := strconv.ParseUint(string(tok), 10, 64)
	return uint(v), n, err
}

// parseReference parses an "id gen R" object reference. §7.3.10
func parseReference(slice []byte) (ObjectReference, int, error) {
	var ref ObjectReference
	i := 0

	number, n, err := parseUint(slice)
	i += n
	if err != nil {
		return ref, i, err
	}
	ref.ObjectNumber = number

	generation, n, err := parseUint(slice[i:])
	i += n
	if err != nil {
		return ref, i, err
	}
	ref.GenerationNumber = generation

	n, ok := keyword(slice[i:], "R")
	i += n
	if !ok {
		return ref, i, errors.New("could not find end of object reference")
	}
	return ref, i, nil
}

// parseLiteralString decodes a parenthesized string. Only unescaped
// parens count toward nesting; backslash escapes, octal character
// codes, and line continuations decode per §7.3.4.2.
func parseLiteralString(slice []byte) (Object, int, error) {
	if len(slice) == 0 || slice[0] != '(' {
		return String(nil), 0, errors.New("not a literal string")
	}

	out := make([]byte, 0, len(slice))
	depth := 1
	i := 1
	for i < len(slice) {
		c := slice[i]
		switch c {
		case '(':
			depth++
			out = append(out, c)
			i++
		case ')':
			depth--
			if depth == 0 {
				return String(out), i + 1, nil
			}
			out = append(out, c)
			i++
		case '\r':
			// an unescaped end of line marker reads as a line feed
			out = append(out, '\n')
			i++
			if i < len(slice) && slice[i] == '\n' {
				i++
			}
		case '\\':
			i++
			if i >= len(slice) {
				return String(out), i, errors.New("couldn't find end of string")
			}
			e := slice[i]
			i++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '\n':
				// line continuation
			case '\r':
				if i < len(slice) && slice[i] == '\n' {
					i++
				}
			case '0', '1', '2', '3', '4', '5', '6', '7':
				// up to three octal digits
				v := uint(e - '0')
				for k := 0; k < 2 && i < len(slice) && '0' <= slice[i] && slice[i] <= '7'; k++ {
					v = v<<3 | uint(slice[i]-'0')
					i++
				}
				out = append(out, byte(v))
			default:
				// the backslash before anything else is dropped
				out = append(out, e)
			}
		default:
			out = append(out, c)
			i++
		}
	}
	return String(out), len(slice), errors.New("couldn't find end of string")
}

// parseHexadecimalString gathers hex digits up to the closing angle
// bracket, ignoring interleaved whitespace; an odd final digit is
// padded with zero. §7.3.4.3
func parseHexadecimalString(slice []byte) (Object, int, error) {
	if len(slice) == 0 || slice[0] != '<' {
		return String(nil), 0, errors.New("not a hexadecimal string")
	}

	digits := make([]byte, 0, len(slice))
	for i := 1; i < len(slice); i++ {
		c := slice[i]
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make(String, len(digits)/2)
			for j := range out {
				v, err := strconv.ParseUint(string(digits[2*j:2*j+2]), 16, 8)
				if err != nil {
					return out[:j], i + 1, err
				}
				out[j] = byte(v)
			}
			return out, i + 1, nil
		}
		if isSpace(c) {
			continue
		}
		if !isHexDigit(c) {
			return String(nil), i, fmt.Errorf("%q is not a hexadecimal digit", c)
		}
		digits = append(digits, c)
	}
	return String(nil), len(slice), errors.New("unterminated hexadecimal string")
}

// parseName decodes a solidus-prefixed name, expanding #-escaped
// character codes. §7.3.5
func parseName(slice []byte) (Object, int, error) {
	if len(slice) == 0 || slice[0] != '/' {
		return Name(""), 0, errors.New("not a name")
	}

	name := make([]byte, 0, len(slice))
	i := 1
	for ; i < len(slice); i++ {
		c := slice[i]
		if isSpace(c) || isDelim(c) {
			break
		}
		if c == '#' {
			if i+2 >= len(slice) {
				return Name(name), i, errors.New("truncated #-escape in name")
			}
			v, err := strconv.ParseUint(string(slice[i+1:i+3]), 16, 8)
			if err != nil {
				return Name(name), i, err
			}
			name = append(name, byte(v))
			i += 2
			continue
		}
		name = append(name, c)
	}
	return Name(name), i, nil
}

func parseArray(slice []byte) (Object, int, error) {
	if len(slice) == 0 || slice[0] != '[' {
		return Array{}, 0, errors.New("not an array")
	}

	array := make(Array, 0)
	i := 1
	for i < len(slice) {
		if isSpace(slice[i]) {
			i++
			continue
		}
		if slice[i] == ']' {
			return array, i + 1, nil
		}
		element, n, err := ParseObject(slice[i:])
		if err != nil {
			return array, i, err
		}
		array = append(array, element)
		i += n
	}
	return array, i, errors.New("end of array not found")
}

func parseDictionary(slice []byte) (Object, int, error) {
	dict := make(Dictionary)
	if len(slice) < 2 || slice[0] != '<' || slice[1] != '<' {
		return dict, 0, errors.New("not a dictionary")
	}

	i := 2
	for i < len(slice) {
		n := skipSpace(slice[i:])
		if n < 0 {
			return dict, i, errors.New("unterminated dictionary")
		}
		i += n

		if slice[i] == '>' && i+1 < len(slice) && slice[i+1] == '>' {
			return dict, i + 2, nil
		}

		keyObj, n, err := parseName(slice[i:])
		if err != nil {
			return dict, i + n, err
		}
		i += n
		key, ok := keyObj.(Name)
		if !ok {
			return dict, i, errors.New("dictionary key is not a name")
		}

		value, n, err := ParseObject(slice[i:])
		if err != nil {
			return dict, i, err
		}
		i += n
		dict[key] = value
	}
	return dict, i, errors.New("unterminated dictionary")
}
