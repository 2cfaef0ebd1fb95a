package xmlstream

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokenStart tokenKind = iota + 1
	tokenEnd
	tokenText
)

type token struct {
	kind        tokenKind
	name        string
	attrs       []Attr
	selfClosing bool
	text        string
}

var (
	commentOpen  = []byte("<!--")
	commentClose = []byte("-->")
	cdataOpen    = []byte("<![CDATA[")
	cdataClose   = []byte("]]>")
	piClose      = []byte("?>")
)

// tokenizer is the incremental scanner under ElementStream. It buffers
// partial input across feeds and only surfaces complete constructs, so a
// chunk boundary can never tear a tag, an entity reference or a CDATA
// section. Comments, processing instructions and directives are consumed
// silently.
type tokenizer struct {
	buf    []byte
	limits Limits
}

func (z *tokenizer) feed(p []byte) {
	z.buf = append(z.buf, p...)
}

// next returns the next complete token. ok is false when the buffer ends
// inside a construct and more input is needed.
func (z *tokenizer) next() (token, bool, error) {
	for {
		if len(z.buf) == 0 {
			return token{}, false, nil
		}
		if z.buf[0] != '<' {
			return z.scanText()
		}
		if len(z.buf) < 2 {
			return z.pending()
		}
		switch z.buf[1] {
		case '?':
			end := bytes.Index(z.buf, piClose)
			if end < 0 {
				return z.pending()
			}
			z.buf = z.buf[end+len(piClose):]
		case '!':
			tok, emitted, ok, err := z.scanDeclaration()
			if err != nil || !ok {
				return token{}, false, err
			}
			if emitted {
				return tok, true, nil
			}
		case '/':
			return z.scanEndTag()
		default:
			return z.scanStartTag()
		}
	}
}

// scanText holds a character-data run until the next markup arrives, so
// entity references split across chunks stay whole and adjacent chunks
// coalesce into a single token.
func (z *tokenizer) scanText() (token, bool, error) {
	i := bytes.IndexByte(z.buf, '<')
	if i < 0 {
		return z.pending()
	}
	raw := z.buf[:i]
	z.buf = z.buf[i:]
	text, err := decodeEntities(raw)
	if err != nil {
		return token{}, false, err
	}
	return token{kind: tokenText, text: text}, true, nil
}

// scanDeclaration handles "<!" constructs: CDATA emits text, comments are
// skipped, anything else is treated as a directive and skipped with
// internal-subset bracket awareness.
func (z *tokenizer) scanDeclaration() (tok token, emitted, ok bool, err error) {
	switch {
	case bytes.HasPrefix(z.buf, cdataOpen):
		end := bytes.Index(z.buf[len(cdataOpen):], cdataClose)
		if end < 0 {
			_, _, err = z.pending()
			return token{}, false, false, err
		}
		text := string(z.buf[len(cdataOpen) : len(cdataOpen)+end])
		z.buf = z.buf[len(cdataOpen)+end+len(cdataClose):]
		return token{kind: tokenText, text: text}, true, true, nil
	case bytes.HasPrefix(z.buf, commentOpen):
		end := bytes.Index(z.buf[len(commentOpen):], commentClose)
		if end < 0 {
			_, _, err = z.pending()
			return token{}, false, false, err
		}
		z.buf = z.buf[len(commentOpen)+end+len(commentClose):]
		return token{}, false, true, nil
	case partialPrefix(z.buf, cdataOpen) || partialPrefix(z.buf, commentOpen):
		_, _, err = z.pending()
		return token{}, false, false, err
	default:
		end, done := scanDirective(z.buf)
		if !done {
			_, _, err = z.pending()
			return token{}, false, false, err
		}
		z.buf = z.buf[end+1:]
		return token{}, false, true, nil
	}
}

func (z *tokenizer) scanEndTag() (token, bool, error) {
	end, done, err := scanTag(z.buf)
	if err != nil {
		return token{}, false, err
	}
	if !done {
		return z.pending()
	}
	name := strings.TrimSpace(string(z.buf[2:end]))
	z.buf = z.buf[end+1:]
	if !isName(name) {
		return token{}, false, parseErrorf("malformed end tag %q", name)
	}
	return token{kind: tokenEnd, name: name}, true, nil
}

func (z *tokenizer) scanStartTag() (token, bool, error) {
	end, done, err := scanTag(z.buf)
	if err != nil {
		return token{}, false, err
	}
	if !done {
		return z.pending()
	}
	raw := z.buf[1:end]
	z.buf = z.buf[end+1:]
	return parseStartTag(raw, z.limits.MaxAttrs)
}

// pendingText returns the buffered character-data run still waiting for
// the next markup byte; empty when the buffer starts with markup.
func (z *tokenizer) pendingText() []byte {
	if i := bytes.IndexByte(z.buf, '<'); i >= 0 {
		return z.buf[:i]
	}
	return z.buf
}

// pending reports "need more input", unless the unfinished construct has
// already outgrown the token size limit.
func (z *tokenizer) pending() (token, bool, error) {
	if z.limits.MaxTokenSize > 0 && len(z.buf) > z.limits.MaxTokenSize {
		return token{}, false, parseErrorf("token exceeds %d bytes", z.limits.MaxTokenSize)
	}
	return token{}, false, nil
}

// scanTag finds the '>' closing a tag, skipping quoted attribute values.
func scanTag(buf []byte) (end int, done bool, err error) {
	var quote byte
	for i := 1; i < len(buf); i++ {
		c := buf[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i, true, nil
		case c == '<':
			return 0, false, parseErrorf("unexpected '<' inside tag")
		}
	}
	return 0, false, nil
}

// scanDirective finds the '>' closing a "<!" directive, tolerating a
// bracketed internal subset (e.g. a DOCTYPE declaration).
func scanDirective(buf []byte) (end int, done bool) {
	var quote byte
	depth := 0
	for i := 2; i < len(buf); i++ {
		c := buf[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			if depth > 0 {
				depth--
			}
		case c == '>' && depth == 0:
			return i, true
		}
	}
	return 0, false
}

// parseStartTag parses the inside of a start tag (without the angle
// brackets) into a name, attributes and the self-closing flag.
func parseStartTag(raw []byte, maxAttrs int) (token, bool, error) {
	s := strings.TrimSpace(string(raw))
	selfClosing := false
	if strings.HasSuffix(s, "/") {
		selfClosing = true
		s = strings.TrimRight(s[:len(s)-1], " \t\r\n")
	}
	if s == "" {
		return token{}, false, parseErrorf("empty tag")
	}
	name := s
	rest := ""
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		name, rest = s[:i], s[i:]
	}
	if !isName(name) {
		return token{}, false, parseErrorf("malformed element name %q", name)
	}
	attrs, err := parseAttrs(rest, maxAttrs)
	if err != nil {
		return token{}, false, err
	}
	return token{kind: tokenStart, name: name, attrs: attrs, selfClosing: selfClosing}, true, nil
}

func parseAttrs(s string, maxAttrs int) ([]Attr, error) {
	var attrs []Attr
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return attrs, nil
		}
		start := i
		for i < len(s) && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		name := s[start:i]
		if !isName(name) {
			return nil, parseErrorf("malformed attribute name %q", name)
		}
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			return nil, parseErrorf("attribute %q missing value", name)
		}
		i++
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || (s[i] != '"' && s[i] != '\'') {
			return nil, parseErrorf("attribute %q value must be quoted", name)
		}
		quote := s[i]
		i++
		vstart := i
		for i < len(s) && s[i] != quote {
			i++
		}
		if i >= len(s) {
			return nil, parseErrorf("attribute %q value not terminated", name)
		}
		value, err := decodeEntities([]byte(s[vstart:i]))
		if err != nil {
			return nil, err
		}
		i++
		for _, a := range attrs {
			if a.Name == name {
				return nil, parseErrorf("duplicate attribute %q", name)
			}
		}
		attrs = append(attrs, Attr{Name: name, Value: value})
		if maxAttrs > 0 && len(attrs) > maxAttrs {
			return nil, parseErrorf("element has more than %d attributes", maxAttrs)
		}
	}
}

const maxEntityLen = 16

// decodeEntities resolves the five predefined entities and numeric
// character references. Undefined or unterminated references are parse
// errors; there is no lenient mode.
func decodeEntities(b []byte) (string, error) {
	if bytes.IndexByte(b, '&') < 0 {
		return string(b), nil
	}
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '&' {
			sb.WriteByte(c)
			continue
		}
		j := bytes.IndexByte(b[i:], ';')
		if j < 0 || j > maxEntityLen {
			return "", parseErrorf("unterminated entity reference")
		}
		resolved, err := resolveEntity(string(b[i+1 : i+j]))
		if err != nil {
			return "", err
		}
		sb.WriteString(resolved)
		i += j
	}
	return sb.String(), nil
}

func resolveEntity(ent string) (string, error) {
	switch ent {
	case "lt":
		return "<", nil
	case "gt":
		return ">", nil
	case "amp":
		return "&", nil
	case "apos":
		return "'", nil
	case "quot":
		return `"`, nil
	}
	if strings.HasPrefix(ent, "#") {
		digits := ent[1:]
		base := 10
		if strings.HasPrefix(digits, "x") || strings.HasPrefix(digits, "X") {
			digits = digits[1:]
			base = 16
		}
		n, err := strconv.ParseUint(digits, base, 32)
		if err != nil || !utf8.ValidRune(rune(n)) || n == 0 {
			return "", parseErrorf("invalid character reference &%s;", ent)
		}
		return string(rune(n)), nil
	}
	return "", parseErrorf("undefined entity &%s;", ent)
}

func partialPrefix(buf, full []byte) bool {
	return len(buf) < len(full) && bytes.HasPrefix(full, buf)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !isNameStart(r) {
				return false
			}
			continue
		}
		if !isNameChar(r) {
			return false
		}
	}
	return true
}

func isNameStart(r rune) bool {
	return r == '_' || r == ':' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || r == '-' || r == '.' || unicode.IsDigit(r)
}
