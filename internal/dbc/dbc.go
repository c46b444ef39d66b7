// Package dbc loads CAN signal databases in DBC format and converts frames
// between raw bytes and named physical values. It covers the subset of the
// format used by vehicle reverse-engineering databases: BO_ message
// definitions and SG_ signal definitions with scale, offset, and range.
package dbc

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Signal describes one named field within a message payload.
type Signal struct {
	Name         string
	StartBit     int
	Length       int
	LittleEndian bool
	Signed       bool
	Factor       float64
	Offset       float64
	Min          float64
	Max          float64
	Unit         string
}

// Message describes one frame layout keyed by arbitration identifier.
type Message struct {
	ID      uint32
	Name    string
	Length  int // payload bytes
	Signals []Signal
}

// Database holds the parsed message set, addressable by ID and by name.
type Database struct {
	byID   map[uint32]*Message
	byName map[string]*Message
}

// ParseError reports a malformed database description.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dbc: parse %s:%d: %s", e.Path, e.Line, e.Msg)
}

var (
	// BO_ 528 SPEED: 8 XXX
	messageRe = regexp.MustCompile(`^BO_\s+(\d+)\s+(\w+)\s*:\s*(\d+)\s+\S+`)
	// SG_ SPEED : 47|16@0+ (0.01,0) [0|250] "kph" XXX
	signalRe = regexp.MustCompile(`^SG_\s+(\w+)\s*(?:m\d+|M)?\s*:\s*(\d+)\|(\d+)@([01])([+-])\s+\(([^,]+),([^)]+)\)\s+\[([^|]+)\|([^\]]+)\]\s+"([^"]*)"`)
)

// Load reads and parses a DBC file. A missing file surfaces the underlying
// fs.ErrNotExist so callers can distinguish configuration errors.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dbc: open: %w", err)
	}
	defer f.Close()

	db := &Database{
		byID:   make(map[uint32]*Message),
		byName: make(map[string]*Message),
	}

	var current *Message
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 0, 1<<16), 1<<20)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())

		switch {
		case strings.HasPrefix(line, "BO_ "):
			m := messageRe.FindStringSubmatch(line)
			if m == nil {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: "malformed BO_ line"}
			}
			id, err := strconv.ParseUint(m[1], 10, 32)
			if err != nil {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: "bad message id"}
			}
			size, _ := strconv.Atoi(m[3])
			if size < 0 || size > 8 {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: "bad message size"}
			}
			// DBC stores extended IDs with the high bit set; mask it off.
			current = &Message{ID: uint32(id) & 0x1FFFFFFF, Name: m[2], Length: size}
			db.byID[current.ID] = current
			db.byName[current.Name] = current

		case strings.HasPrefix(line, "SG_ "):
			if current == nil {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: "SG_ before any BO_"}
			}
			sig, perr := parseSignal(line)
			if perr != "" {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: perr}
			}
			if sig.Length <= 0 || sig.Length > 64 {
				return nil, &ParseError{Path: path, Line: lineNo, Msg: "bad signal length"}
			}
			current.Signals = append(current.Signals, sig)

		default:
			// comments, value tables, attributes: not needed for codec work
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("dbc: read %s: %w", path, err)
	}

	// keep signal order deterministic for encode error reporting
	for _, m := range db.byID {
		sort.SliceStable(m.Signals, func(i, j int) bool {
			return m.Signals[i].Name < m.Signals[j].Name
		})
	}
	return db, nil
}

func parseSignal(line string) (Signal, string) {
	m := signalRe.FindStringSubmatch(line)
	if m == nil {
		return Signal{}, "malformed SG_ line"
	}
	start, _ := strconv.Atoi(m[2])
	length, _ := strconv.Atoi(m[3])
	factor, err := strconv.ParseFloat(strings.TrimSpace(m[6]), 64)
	if err != nil || factor == 0 {
		return Signal{}, "bad signal factor"
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(m[7]), 64)
	if err != nil {
		return Signal{}, "bad signal offset"
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(m[8]), 64)
	if err != nil {
		return Signal{}, "bad signal minimum"
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(m[9]), 64)
	if err != nil {
		return Signal{}, "bad signal maximum"
	}
	return Signal{
		Name:         m[1],
		StartBit:     start,
		Length:       length,
		LittleEndian: m[4] == "1",
		Signed:       m[5] == "-",
		Factor:       factor,
		Offset:       offset,
		Min:          min,
		Max:          max,
		Unit:         m[10],
	}, ""
}

// MessageByID looks up a message layout by arbitration identifier.
func (db *Database) MessageByID(id uint32) (*Message, bool) {
	m, ok := db.byID[id]
	return m, ok
}

// MessageByName looks up a message layout by name.
func (db *Database) MessageByName(name string) (*Message, bool) {
	m, ok := db.byName[name]
	return m, ok
}

// Messages returns all message names in the database, sorted.
func (db *Database) Messages() []string {
	names := make([]string, 0, len(db.byName))
	for name := range db.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
