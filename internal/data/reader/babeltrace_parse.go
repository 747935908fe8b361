package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/penwyp/go-coro-inspect/internal/core/model"
)

// ParseBabeltraceLine decodes one line of babeltrace text output, e.g.
//
//	[1526469436.403123232] host ttracer:coro_beacon: { cpu_id = 0 }, { state = ( "Begin" : container = 0 ), coro_id = 0x7F3A, coro_stack = 0x7F00, type = ( "Net" : container = 1 ), msg = "fetch" }
//
// Timestamps may be printed in seconds (--clock-seconds) or as a time of day,
// with or without the (+delta) column. Fields from every scope are collected,
// later scopes winning.
func ParseBabeltraceLine(line string) (model.Event, error) {
	var event model.Event

	p := &lineParser{s: line}
	p.skipSpaces()
	if !p.consume('[') {
		return event, fmt.Errorf("missing timestamp")
	}
	closeIdx := strings.IndexByte(p.s[p.pos:], ']')
	if closeIdx < 0 {
		return event, fmt.Errorf("unterminated timestamp")
	}
	ts, err := parseTimestamp(p.s[p.pos : p.pos+closeIdx])
	if err != nil {
		return event, err
	}
	event.Timestamp = ts
	p.pos += closeIdx + 1

	// The event name is the last token before the first ": {".
	headerEnd := strings.Index(p.s[p.pos:], ": {")
	if headerEnd < 0 {
		return event, fmt.Errorf("missing event payload")
	}
	header := strings.Fields(p.s[p.pos : p.pos+headerEnd])
	if len(header) == 0 {
		return event, fmt.Errorf("missing event name")
	}
	event.Name = header[len(header)-1]
	p.pos += headerEnd + 1

	fields := make(map[string]string)
	for {
		p.skipSpaces()
		if p.done() {
			break
		}
		if err := p.parseStruct(fields); err != nil {
			return event, err
		}
		p.skipSpaces()
		if !p.consume(',') {
			break
		}
	}

	if err := applyFields(&event, fields); err != nil {
		return event, err
	}
	return event, nil
}

func applyFields(event *model.Event, fields map[string]string) error {
	if v, ok := fields[model.FieldState]; ok {
		event.State = model.CoroState(v)
	}
	if v, ok := fields[model.FieldType]; ok {
		event.Type = v
	}
	if v, ok := fields[model.FieldMsg]; ok {
		event.Msg = v
	}
	if v, ok := fields[model.FieldCoroID]; ok {
		id, err := parseID(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", model.FieldCoroID, err)
		}
		event.CoroID = id
	}
	if v, ok := fields[model.FieldStack]; ok {
		id, err := parseID(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", model.FieldStack, err)
		}
		event.Stack = id
	}
	return nil
}

func parseID(v string) (uint64, error) {
	if id, err := strconv.ParseUint(v, 0, 64); err == nil {
		return id, nil
	}
	// pointers printed as signed decimals
	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// parseTimestamp accepts "sec.nsec" and "HH:MM:SS.nsec", returning nanoseconds.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var secPart, fracPart string
	if dot := strings.LastIndexByte(s, '.'); dot >= 0 {
		secPart, fracPart = s[:dot], s[dot+1:]
	} else {
		secPart = s
	}

	var seconds int64
	if strings.Contains(secPart, ":") {
		parts := strings.Split(secPart, ":")
		if len(parts) != 3 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		for _, part := range parts {
			n, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid timestamp %q", s)
			}
			seconds = seconds*60 + n
		}
	} else {
		n, err := strconv.ParseInt(secPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		seconds = n
	}

	var nanos int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		n, err := strconv.ParseInt(fracPart+strings.Repeat("0", 9-len(fracPart)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		nanos = n
	}
	return seconds*1e9 + nanos, nil
}

type lineParser struct {
	s   string
	pos int
}

func (p *lineParser) done() bool {
	return p.pos >= len(p.s)
}

func (p *lineParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.pos]
}

func (p *lineParser) skipSpaces() {
	for !p.done() && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *lineParser) consume(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

// parseStruct reads "{ key = value, ... }". Nested structures are parsed but
// only top-level scalar fields are recorded.
func (p *lineParser) parseStruct(fields map[string]string) error {
	p.skipSpaces()
	if !p.consume('{') {
		return fmt.Errorf("expected '{' at column %d", p.pos)
	}
	for {
		p.skipSpaces()
		if p.consume('}') {
			return nil
		}
		if p.done() {
			return fmt.Errorf("unterminated structure")
		}

		eq := strings.Index(p.s[p.pos:], " = ")
		if eq < 0 {
			return fmt.Errorf("expected field at column %d", p.pos)
		}
		key := strings.TrimSpace(p.s[p.pos : p.pos+eq])
		p.pos += eq + 3

		value, err := p.parseValue()
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		if fields != nil {
			fields[key] = value
		}

		p.skipSpaces()
		if p.done() {
			return fmt.Errorf("unterminated structure")
		}
		if p.consume(',') {
			continue
		}
		if p.consume('}') {
			return nil
		}
		return fmt.Errorf("expected ',' or '}' at column %d", p.pos)
	}
}

func (p *lineParser) parseValue() (string, error) {
	p.skipSpaces()
	switch p.peek() {
	case '"':
		return p.parseString()
	case '(':
		return p.parseEnum()
	case '{':
		return "", p.parseStruct(nil)
	case '[':
		return "", p.skipBracketed('[', ']')
	}

	start := p.pos
	for !p.done() && p.s[p.pos] != ',' && p.s[p.pos] != '}' {
		p.pos++
	}
	value := strings.TrimSpace(p.s[start:p.pos])
	if value == "" {
		return "", fmt.Errorf("empty value at column %d", start)
	}
	return value, nil
}

func (p *lineParser) parseString() (string, error) {
	start := p.pos
	p.pos++
	var b strings.Builder
	for !p.done() {
		c := p.s[p.pos]
		switch c {
		case '\\':
			if p.pos+1 < len(p.s) {
				b.WriteByte(unescape(p.s[p.pos+1]))
				p.pos += 2
				continue
			}
		case '"':
			p.pos++
			return b.String(), nil
		}
		b.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("unterminated string at column %d", start)
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

// parseEnum reads `( "Label" : container = 1 )` and returns the label. Values
// without a label (`( <unknown> : container = 7 )`) return the container value.
func (p *lineParser) parseEnum() (string, error) {
	start := p.pos
	p.pos++
	p.skipSpaces()

	var label string
	if p.peek() == '"' {
		s, err := p.parseString()
		if err != nil {
			return "", err
		}
		label = s
	}

	end := strings.IndexByte(p.s[p.pos:], ')')
	if end < 0 {
		return "", fmt.Errorf("unterminated enum at column %d", start)
	}
	rest := p.s[p.pos : p.pos+end]
	p.pos += end + 1

	if label != "" {
		return label, nil
	}
	if idx := strings.Index(rest, "container = "); idx >= 0 {
		return strings.TrimSpace(rest[idx+len("container = "):]), nil
	}
	return strings.TrimSpace(rest), nil
}

func (p *lineParser) skipBracketed(open, close byte) error {
	start := p.pos
	depth := 0
	for !p.done() {
		switch p.s[p.pos] {
		case '"':
			if _, err := p.parseString(); err != nil {
				return err
			}
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				p.pos++
				return nil
			}
		}
		p.pos++
	}
	return fmt.Errorf("unterminated %c at column %d", open, start)
}
