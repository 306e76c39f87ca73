package deepgramapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"tomappdev/logger"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultModel    = "nova-3"
	defaultLanguage = "en"
)

// ErrNoTranscript is returned when the audio held no recognisable speech.
var ErrNoTranscript = errors.New("no transcript in response")

type DeepgramConnectProps struct {
	Logger   *logger.LogMiddleware
	Model    string
	Language string
}

type DeepgramAPI struct {
	logger  *logger.LogMiddleware
	dg      *api.Client
	options *interfaces.PreRecordedTranscriptionOptions
}

// Enabled reports whether a Deepgram key is configured.
func Enabled() bool {
	return os.Getenv("DEEPGRAM_API_KEY") != ""
}

// Connect builds a REST client. The SDK reads DEEPGRAM_API_KEY from the environment.
func Connect(ctx context.Context, args DeepgramConnectProps) *DeepgramAPI {
	tracer := otel.Tracer("deepgramapi/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Logger == nil {
		args.Logger = logger.Nop()
	}
	model := args.Model
	if model == "" {
		model = defaultModel
	}
	language := args.Language
	if language == "" {
		language = defaultLanguage
	}

	c := client.NewRESTWithDefaults()
	dg := api.New(c)

	span.SetAttributes(attribute.String("deepgram.model", model), attribute.String("deepgram.language", language))
	args.Logger.Logger(ctx).Info("[Deepgram] Transcription client ready", zap.String("model", model), zap.String("language", language))

	return &DeepgramAPI{
		logger: args.Logger,
		dg:     dg,
		options: &interfaces.PreRecordedTranscriptionOptions{
			Model:     model,
			Language:  language,
			Punctuate: true,
		},
	}
}

// Transcribe turns a voice note into the text of its first channel's best alternative.
func (d *DeepgramAPI) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	tracer := otel.Tracer("deepgramapi/Transcribe")
	ctx, span := tracer.Start(ctx, "Transcribe")
	defer span.End()

	log := d.logger.Logger(ctx)

	span.AddEvent("Calling Deepgram API")
	res, err := d.dg.FromStream(ctx, audio, d.options)
	if err != nil {
		span.RecordError(err)
		log.Error("[Deepgram] Transcription failed", zap.Error(err))
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}

	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 ||
		len(res.Results.Channels[0].Alternatives) == 0 {
		span.RecordError(ErrNoTranscript)
		log.Warn("[Deepgram] Response carried no channels")
		return "", ErrNoTranscript
	}

	transcript := strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript)
	if transcript == "" {
		log.Warn("[Deepgram] Empty transcript")
		return "", ErrNoTranscript
	}

	span.AddEvent("Transcription successful", trace.WithAttributes(attribute.Int("transcript.length", len(transcript))))
	log.Info("[Deepgram] Voice note transcribed", zap.Int("length", len(transcript)))
	return transcript, nil
}
