package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pixelflut/internal/canvas"
)

const (
	cmdSize  = "SIZE"
	cmdPixel = "PX"
)

// ProtocolError is a malformed command. The line is dropped and the
// session keeps serving.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bad command %q: %v", e.Line, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConnectionError is a transport failure that ends one session.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

var errLineTooLong = errors.New("line too long")

// splitCommand returns the verb and its arguments. An empty line yields an
// empty verb.
func splitCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

func formatSize(width, height int) string {
	return fmt.Sprintf("%s %d %d", cmdSize, width, height)
}

// parsePixel parses the arguments of "PX <x> <y> <RRGGBB|RRGGBBAA>".
func parsePixel(args []string) (x, y int, col canvas.Color, err error) {
	if len(args) != 3 {
		return 0, 0, col, fmt.Errorf("expected 3 arguments, got %d", len(args))
	}
	if x, err = parseCoord(args[0]); err != nil {
		return 0, 0, col, err
	}
	if y, err = parseCoord(args[1]); err != nil {
		return 0, 0, col, err
	}
	col, err = parseColor(args[2])
	return x, y, col, err
}

func parseCoord(s string) (int, error) {
	// Atoi alone would take a leading sign.
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0, fmt.Errorf("invalid coordinate: %s", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate: %s", s)
	}
	return n, nil
}

func parseColor(s string) (canvas.Color, error) {
	if len(s) != 6 && len(s) != 8 {
		return canvas.Color{}, fmt.Errorf("invalid color length: %s", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return canvas.Color{}, fmt.Errorf("invalid color value: %s", s)
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return canvas.Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
