// Package google provides a Google Cloud Speech-to-Text provider.
package google

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"speech-transcript-service/internal/observability"
	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/observability/metrics"
	"speech-transcript-service/internal/service/stt"
)

// ErrAlreadyRunning is returned by Start while a stream is open.
var ErrAlreadyRunning = errors.New("google provider already running")

// Config holds Google STT configuration.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string
	MaxAlternatives int32
}

// DefaultConfig returns sensible defaults for telephony audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    8000,
		InterimResults:  true,
		AudioEncoding:   "LINEAR16",
		MaxAlternatives: 3,
	}
}

// recognizeStream is the part of the gRPC stream the provider uses.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type openFunc func(ctx context.Context) (recognizeStream, error)

// Provider implements stt.Provider and stt.AudioSink using Google Cloud
// Speech-to-Text streaming recognition.
//
// Google never resends a final result, so the provider keeps the finals of
// the current stream and prepends them to every batch. Indices stay stable
// for the whole stream, the way a browser recognizer reports them.
type Provider struct {
	client *speech.Client
	open   openFunc
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	stream recognizeStream
	closed bool // CloseSend was issued on stream
}

// ClientOptions returns the options used to dial Speech-to-Text: stream
// metrics and logging on every call.
func ClientOptions() []option.ClientOption {
	return []option.ClientOption{
		option.WithGRPCDialOption(grpc.WithChainStreamInterceptor(observability.StreamClientInterceptor(metrics.DefaultMetrics))),
	}
}

// New creates a new Google STT provider.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Provider, error) {
	c, err := speech.NewClient(ctx, append(ClientOptions(), opts...)...)
	if err != nil {
		return nil, err
	}
	p := newProvider(cfg, func(ctx context.Context) (recognizeStream, error) {
		return c.StreamingRecognize(ctx)
	})
	p.client = c
	return p, nil
}

func newProvider(cfg Config, open openFunc) *Provider {
	return &Provider{
		open:   open,
		cfg:    cfg,
		logger: logging.WithComponent("stt-google"),
	}
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Start opens a streaming recognition and sends the initial config.
func (p *Provider) Start(ctx context.Context, language string, cb stt.Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return ErrAlreadyRunning
	}
	if language == "" {
		language = p.cfg.LanguageCode
	}

	stream, err := p.open(ctx)
	if err != nil {
		return err
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(p.cfg.AudioEncoding),
					SampleRateHertz: p.cfg.SampleRateHz,
					LanguageCode:    language,
					MaxAlternatives: p.cfg.MaxAlternatives,
				},
				InterimResults: p.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		stream.CloseSend()
		return err
	}

	p.stream = stream
	p.closed = false

	p.logger.Info().
		Str("language", language).
		Int32("sampleRateHz", p.cfg.SampleRateHz).
		Str("encoding", p.cfg.AudioEncoding).
		Msg("Streaming recognition started")

	go p.listen(stream, cb)
	return nil
}

// Stop half-closes the stream. Google flushes pending results and ends the
// stream, which is reported through OnEnd.
func (p *Provider) Stop() error {
	return p.closeSend()
}

// EndStream ends the stream the same way Stop does. The controller tells
// the two apart by whether it asked for the stop.
func (p *Provider) EndStream() error {
	return p.closeSend()
}

func (p *Provider) closeSend() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed {
		return nil
	}
	p.closed = true
	return p.stream.CloseSend()
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (p *Provider) SendAudio(ctx context.Context, audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed {
		return stt.ErrNoActiveRun
	}
	return p.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// listen receives responses until the stream ends and reports them to cb.
func (p *Provider) listen(stream recognizeStream, cb stt.Callback) {
	cb.OnStarted()

	var finals []stt.Hypothesis
	for {
		resp, err := stream.Recv()
		if err != nil {
			p.detach(stream)
			if perr := classify(err); perr != nil {
				p.logger.Warn().
					Err(err).
					Str("kind", perr.Kind.String()).
					Msg("Streaming recognition failed")
				cb.OnError(perr)
				return
			}
			p.logger.Info().Err(err).Msg("Streaming recognition ended")
			cb.OnEnd()
			return
		}

		if e := p.logger.Debug(); e.Enabled() {
			if raw, mErr := protojson.Marshal(resp); mErr == nil {
				e.RawJSON("response", raw).Msg("Speech response")
			}
		}

		if st := resp.GetError(); st != nil && st.GetCode() != int32(codes.OK) {
			p.detach(stream)
			perr := classify(status.ErrorProto(st))
			if perr == nil {
				cb.OnEnd()
			} else {
				cb.OnError(perr)
			}
			return
		}

		var batch stt.Batch
		finals, batch = appendResults(finals, resp.GetResults())
		if batch.Len() > 0 {
			cb.OnBatch(batch)
		}
	}
}

// detach forgets stream so that a new run can start once the end is reported.
func (p *Provider) detach(stream recognizeStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == stream {
		p.stream = nil
		p.closed = false
	}
}

// appendResults folds one response into the finals of the stream and
// returns the cumulative batch: every final so far, then the current
// interim results.
func appendResults(finals []stt.Hypothesis, results []*speechpb.StreamingRecognitionResult) ([]stt.Hypothesis, stt.Batch) {
	var interim []stt.Hypothesis
	for _, r := range results {
		h, ok := toHypothesis(r)
		if !ok {
			continue
		}
		if h.IsFinal {
			finals = append(finals, h)
		} else {
			interim = append(interim, h)
		}
	}
	if len(results) == 0 {
		return finals, stt.Batch{}
	}

	hs := make([]stt.Hypothesis, 0, len(finals)+len(interim))
	hs = append(hs, finals...)
	hs = append(hs, interim...)
	return finals, stt.Batch{Hypotheses: hs}
}

func toHypothesis(r *speechpb.StreamingRecognitionResult) (stt.Hypothesis, bool) {
	alts := r.GetAlternatives()
	if len(alts) == 0 {
		return stt.Hypothesis{}, false
	}
	h := stt.Hypothesis{
		Candidates: make([]stt.Candidate, 0, len(alts)),
		IsFinal:    r.GetIsFinal(),
	}
	for _, a := range alts {
		// Google leaves confidence at zero when it did not compute one.
		h.Candidates = append(h.Candidates, stt.Candidate{
			Text:          a.GetTranscript(),
			Confidence:    float64(a.GetConfidence()),
			HasConfidence: a.GetConfidence() > 0,
		})
	}
	return h, true
}

// classify maps a stream error to a provider error. It returns nil for
// errors that are a normal end of the stream: EOF after CloseSend, our own
// cancellation, and the stream duration limit.
func classify(err error) *stt.ProviderError {
	if errors.Is(err, io.EOF) {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return stt.NewProviderError("unknown", err)
	}

	switch st.Code() {
	case codes.OK, codes.Canceled, codes.DeadlineExceeded:
		return nil
	case codes.OutOfRange:
		if strings.Contains(st.Message(), "Audio Timeout") {
			return stt.NewProviderError("no-speech", err)
		}
		return nil
	case codes.Unavailable:
		return stt.NewProviderError("network", err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return stt.NewProviderError("not-allowed", err)
	default:
		return stt.NewProviderError(st.Code().String(), err)
	}
}

// parseAudioEncoding converts string encoding to Google's enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
