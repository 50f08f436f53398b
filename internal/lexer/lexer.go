package lexer

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/atlassian/netstatsd"
)

// Lexer parses one statsd line of the form key:value|type[|@rate][:value|type[|@rate]...].
// A Lexer is not safe for concurrent use, but may be reused for any number of lines.
type Lexer struct {
	// any field added must be considered in Lexer.reset
	input    []byte
	len      uint32
	start    uint32
	pos      uint32
	key      string
	s        *netstatsd.Sample
	samples  []*netstatsd.Sample
	err      error
	sampling float64
}

// assumes we don't have \x00 bytes in input.
const eof byte = 0

var (
	errMissingKeySep   = errors.New("missing key separator")
	errEmptyKey        = errors.New("key zero len")
	errMissingValueSep = errors.New("missing value separator")
	errEmptyValue      = errors.New("value zero len")
	errInvalidType     = errors.New("invalid type")
	errInvalidValue    = errors.New("invalid value")
	errInvalidRate     = errors.New("invalid sample rate")
	errNaN             = errors.New("invalid value NaN")
)

func (l *Lexer) next() byte {
	if l.pos >= l.len {
		return eof
	}
	b := l.input[l.pos]
	l.pos++
	return b
}

func (l *Lexer) reset() {
	// l.input = nil  // re-initialized by Run
	// l.len = 0      // re-initialized by Run
	// l.sampling = 1 // re-initialized by lexGroup

	l.start = 0
	l.pos = 0
	l.key = ""
	l.s = nil
	l.samples = nil
	l.err = nil
}

// Run parses input, which may be modified in place while sanitising the key. Either all
// samples of the line are returned, or an error.
func (l *Lexer) Run(input []byte) ([]*netstatsd.Sample, error) {
	l.reset()
	l.input = input
	l.len = uint32(len(l.input))

	for state := lexKeySep; state != nil; {
		state = state(l)
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.samples, nil
}

type stateFn func(*Lexer) stateFn

// lex until we find the colon separator between key and value.
func lexKeySep(l *Lexer) stateFn {
	for {
		switch b := l.next(); b {
		case '/':
			l.input[l.pos-1] = '-'
		case ' ', '\t':
			l.input[l.pos-1] = '_'
		case ':':
			return lexKey
		case eof:
			l.err = errMissingKeySep
			return nil
		case '.', '-', '_':
			continue
		default:
			r := rune(b)
			if (97 <= r && 122 >= r) || (65 <= r && 90 >= r) || (48 <= r && 57 >= r) {
				continue
			}
			l.input = append(l.input[0:l.pos-1], l.input[l.pos:]...)
			l.len--
			l.pos--
		}
	}
}

// lex the key.
func lexKey(l *Lexer) stateFn {
	if l.start == l.pos-1 {
		l.err = errEmptyKey
		return nil
	}
	l.key = string(l.input[l.start : l.pos-1])
	return lexGroup
}

// start a value|type group, several of which may share one key.
func lexGroup(l *Lexer) stateFn {
	l.s = &netstatsd.Sample{Key: l.key}
	l.sampling = 1
	l.start = l.pos
	return lexValueSep
}

// lex until we find the pipe separator between value and type.
func lexValueSep(l *Lexer) stateFn {
	for {
		// cheap check here. ParseFloat will do it.
		switch b := l.next(); b {
		case '|':
			return lexValue
		case eof:
			l.err = errMissingValueSep
			return nil
		}
	}
}

// lex the value.
func lexValue(l *Lexer) stateFn {
	if l.start == l.pos-1 {
		l.err = errEmptyValue
		return nil
	}
	l.s.StringValue = string(l.input[l.start : l.pos-1])
	l.start = l.pos
	return lexType
}

// lex the type.
func lexType(l *Lexer) stateFn {
	switch b := l.next(); b {
	case 'c':
		l.s.Type = netstatsd.COUNTER
	case 'g':
		l.s.Type = netstatsd.GAUGE
	case 'm':
		if b := l.next(); b != 's' {
			l.err = errInvalidType
			return nil
		}
		l.s.Type = netstatsd.TIMER
	case 'h':
		l.s.Type = netstatsd.TIMER
	case 's':
		l.s.Type = netstatsd.SET
	default:
		l.err = errInvalidType
		return nil
	}
	l.start = l.pos
	return lexMetricFields
}

// lex the separator after the type or a field: another field, another group, or the end.
func lexMetricFields(l *Lexer) stateFn {
	switch b := l.next(); b {
	case '|':
		l.start = l.pos
		return lexMetricField
	case ':':
		if !l.emit() {
			return nil
		}
		return lexGroup
	case eof:
		l.emit()
	default:
		l.err = errInvalidType
	}
	return nil
}

// lexMetricField lexes the optional sample rate. Will ignore unrecognised fields.
func lexMetricField(l *Lexer) stateFn {
	switch b := l.next(); b {
	case '@':
		return lexSampleRate
	case eof:
		l.emit()
		return nil
	default:
		// unknown fields are sent by some clients, ignore them
		return lexUnknown
	}
}

// lexSampleRate consumes the rate up to the next separator, which is not consumed.
func lexSampleRate(l *Lexer) stateFn {
	l.start = l.pos
	for {
		switch b := l.next(); b {
		case '|', ':':
			l.pos--
			return lexSampleRateValue
		case eof:
			return lexSampleRateValue
		}
	}
}

func lexSampleRateValue(l *Lexer) stateFn {
	v, err := strconv.ParseFloat(string(l.input[l.start:l.pos]), 64)
	if err != nil {
		l.err = fmt.Errorf("%w: %v", errInvalidRate, err)
		return nil
	}
	l.sampling = v
	return lexMetricFields
}

// lexUnknown consumes and discards all bytes up to the stop byte ('|') or an eof.
// The stop byte is not consumed.
func lexUnknown(l *Lexer) stateFn {
	for {
		switch b := l.next(); b {
		case '|':
			l.pos--
			return lexMetricFields
		case eof:
			return lexMetricFields
		}
	}
}

// emit completes the current sample, parsing its numeric value.
func (l *Lexer) emit() bool {
	s := l.s
	s.Rate = l.sampling
	if s.Type != netstatsd.SET {
		raw := s.StringValue
		if s.Type == netstatsd.GAUGE && (raw[0] == '+' || raw[0] == '-') {
			s.Delta = true
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			l.err = fmt.Errorf("%w: %v", errInvalidValue, err)
			return false
		}
		if math.IsNaN(v) {
			l.err = errNaN
			return false
		}
		s.Value = v
		s.StringValue = ""
	}
	l.samples = append(l.samples, s)
	return true
}
