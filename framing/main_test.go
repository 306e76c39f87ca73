package framing

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	got := string(EncodeText(`He said "bowl" now`))
	want := `0:"He said \"bowl\" now"` + "\n"
	if got != want {
		t.Fatalf("EncodeText = %q, want %q", got, want)
	}
	if string(EncodeEnd()) != "e:[]\n" {
		t.Fatalf("EncodeEnd = %q", EncodeEnd())
	}
}

func TestRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"plain",
		`"`,
		`""quoted""`,
		`a "b" c "d"`,
		`ends with "`,
		`back\slash and \"already escaped\"`,
		"You're welcome! Ünïcödé 🏏",
	}

	for _, text := range texts {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		if err := w.WriteText(text); err != nil {
			t.Fatalf("WriteText failed: %v", err)
		}
		if err := w.WriteEnd(); err != nil {
			t.Fatalf("WriteEnd failed: %v", err)
		}

		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if got != text {
			t.Errorf("round trip of %q gave %q", text, got)
		}
	}
}

func TestDecoderAcrossChunkBoundaries(t *testing.T) {
	stream := string(EncodeText(`Say "howzat" 🏏`)) + string(EncodeEnd())

	// Feed one byte at a time so every boundary is exercised.
	var d Decoder
	for i := 0; i < len(stream); i++ {
		d.Write([]byte{stream[i]})
	}
	d.Close()

	if got := d.Text(); got != `Say "howzat" 🏏` {
		t.Fatalf("Text = %q", got)
	}
	if d.Frames() != 1 {
		t.Fatalf("Frames = %d, want 1", d.Frames())
	}
}

func TestDecoderIgnoresMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`garbage`,
		``,
		`   `,
		`0:"unterminated`,
		`1:"other channel"`,
		`e:[]`,
		`0:"kept"`,
		`0:"trailing" junk`,
		`0:"crlf"` + "\r",
	}, "\n")

	got, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != "kepttrailingcrlf" {
		t.Fatalf("Decode = %q, want %q", got, "kepttrailingcrlf")
	}
}

func TestDecoderConcatenatesFrames(t *testing.T) {
	input := string(EncodeText("one ")) + string(EncodeText("two")) + string(EncodeEnd())
	got, _ := Decode(strings.NewReader(input))
	if got != "one two" {
		t.Fatalf("Decode = %q", got)
	}
}

func TestDecoderFinalLineWithoutNewline(t *testing.T) {
	var d Decoder
	d.Write([]byte(`0:"no newline"`))
	if d.Text() != "" {
		t.Fatalf("partial line should not be parsed before Close")
	}
	d.Close()
	if d.Text() != "no newline" {
		t.Fatalf("Text = %q", d.Text())
	}
}

func TestWriterFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	if err := w.WriteText("hi"); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	if !rec.Flushed {
		t.Error("expected recorder to be flushed after a frame")
	}
	if rec.Body.String() != "0:\"hi\"\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
