// Package framing implements the line-oriented stream format used between the
// chat endpoint and its clients:
//
//	0:"<text with every " escaped as \">"\n
//	e:[]\n
//
// The format has no length prefix and is not binary safe. It is kept for wire
// compatibility with existing chat widgets and should not be extended.
package framing

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	textPrefix = `0:"`
	textSuffix = `"`
	endFrame   = "e:[]"
)

func Escape(text string) string {
	return strings.ReplaceAll(text, `"`, `\"`)
}

func Unescape(payload string) string {
	return strings.ReplaceAll(payload, `\"`, `"`)
}

// EncodeText returns one newline-terminated text frame.
func EncodeText(text string) []byte {
	return []byte(textPrefix + Escape(text) + textSuffix + "\n")
}

// EncodeEnd returns the terminator frame.
func EncodeEnd() []byte {
	return []byte(endFrame + "\n")
}

// ParseLine extracts the payload of a text frame. Any other line, including the
// terminator, reports false.
func ParseLine(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, textPrefix) {
		return "", false
	}
	rest := line[len(textPrefix):]
	end := strings.LastIndex(rest, textSuffix)
	if end < 0 {
		return "", false
	}
	return Unescape(rest[:end]), true
}

// Writer emits frames and flushes after each one when the destination supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

func (fw *Writer) WriteText(text string) error {
	return fw.write(EncodeText(text))
}

func (fw *Writer) WriteEnd() error {
	return fw.write(EncodeEnd())
}

func (fw *Writer) write(frame []byte) error {
	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return nil
}

// Decoder accumulates text frames from arbitrarily split chunks. A line is only
// parsed once its newline has arrived, so frames and multi-byte characters may
// straddle chunk boundaries.
type Decoder struct {
	pending []byte
	text    strings.Builder
	frames  int
}

func (d *Decoder) Write(chunk []byte) (int, error) {
	d.pending = append(d.pending, chunk...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		d.consume(string(d.pending[:i]))
		d.pending = d.pending[i+1:]
	}
	return len(chunk), nil
}

// Close parses a trailing line that arrived without a newline.
func (d *Decoder) Close() error {
	if len(d.pending) > 0 {
		d.consume(string(d.pending))
		d.pending = nil
	}
	return nil
}

func (d *Decoder) consume(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if payload, ok := ParseLine(line); ok {
		d.text.WriteString(payload)
		d.frames++
	}
}

// Text is everything accumulated so far.
func (d *Decoder) Text() string {
	return d.text.String()
}

// Frames counts the text frames seen.
func (d *Decoder) Frames() int {
	return d.frames
}

// Decode reads r to the end and returns the accumulated text.
func Decode(r io.Reader) (string, error) {
	var d Decoder
	if _, err := io.Copy(&d, r); err != nil {
		return d.Text(), err
	}
	d.Close()
	return d.Text(), nil
}
