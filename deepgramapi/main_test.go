package deepgramapi

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"tomappdev/logger"
)

func TestTranscribe(t *testing.T) {
	if !Enabled() {
		t.Skip("DEEPGRAM_API_KEY environment variable not set, skipping test")
	}
	path := os.Getenv("DEEPGRAM_TEST_AUDIO")
	if path == "" {
		t.Skip("DEEPGRAM_TEST_AUDIO not set, skipping test")
	}

	audio, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audio: %v", err)
	}
	defer audio.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dg := Connect(ctx, DeepgramConnectProps{Logger: logger.Nop()})

	transcript, err := dg.Transcribe(ctx, audio)
	if err != nil && !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("Transcribe failed: %v", err)
	}
	t.Logf("Transcript: %s", transcript)
}

func TestEnabled(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	if Enabled() {
		t.Fatal("Enabled with an empty key")
	}
	t.Setenv("DEEPGRAM_API_KEY", "key")
	if !Enabled() {
		t.Fatal("not Enabled with a key set")
	}
}
