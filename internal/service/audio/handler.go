// Package audio feeds raw audio into the recognition provider and enforces
// per-segment limits.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/observability/metrics"
	"speech-transcript-service/internal/service/stt"
)

// ErrLimitExceeded is returned when a frame pushed the current segment over
// one of its limits. The provider stream is ended and the frame is dropped.
var ErrLimitExceeded = errors.New("segment limit exceeded")

// SegmentLimits defines safety guardrails for a single provider run.
// When a limit is hit the stream is ended gracefully; the session sees an
// unrequested end and restarts with a fresh segment.
type SegmentLimits struct {
	MaxAudioBytes int64         // Max audio per segment
	MaxDuration   time.Duration // Max segment duration
	MaxFrames     int           // Max frames per segment
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() SegmentLimits {
	return SegmentLimits{
		MaxAudioBytes: 5 * 1024 * 1024, // 5MB (~327 seconds at 8kHz 16-bit mono)
		MaxDuration:   290 * time.Second, // under the provider's 305s stream cap
		MaxFrames:     10000,
	}
}

// Config controls how audio is read.
type Config struct {
	FrameSize     int           // bytes per frame
	FrameInterval time.Duration // pacing between frames, zero for as fast as possible
	Limits        SegmentLimits
}

// DefaultConfig returns 100ms frames of 8kHz LINEAR16 audio paced in real time.
func DefaultConfig() Config {
	return Config{
		FrameSize:     1600,
		FrameInterval: 100 * time.Millisecond,
		Limits:        DefaultLimits(),
	}
}

// Handler forwards audio frames to an stt.AudioSink.
type Handler struct {
	sink    stt.AudioSink
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// Current segment usage (reset when the run ends)
	mu           sync.Mutex
	segmentStart time.Time
	audioBytes   int64
	frames       int
	segments     int
}

// NewHandler creates a handler with the default configuration.
func NewHandler(sink stt.AudioSink) *Handler {
	return NewHandlerWithConfig(sink, DefaultConfig())
}

// NewHandlerWithConfig creates a handler with a custom configuration.
func NewHandlerWithConfig(sink stt.AudioSink, cfg Config) *Handler {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultConfig().FrameSize
	}
	return &Handler{
		sink:    sink,
		cfg:     cfg,
		logger:  logging.WithComponent("audio"),
		metrics: metrics.DefaultMetrics,
		now:     time.Now,
	}
}

// SendAudio forwards one frame to the sink.
//
// It returns ErrLimitExceeded when the frame pushed the segment over a
// limit, and stt.ErrNoActiveRun while no provider run accepts audio.
// Both mean the frame was dropped.
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	h.mu.Lock()
	if h.segmentStart.IsZero() {
		h.segmentStart = h.now()
		h.segments++
	}
	h.audioBytes += int64(len(audio))
	h.frames++
	limit, reason := h.checkLimits()
	h.mu.Unlock()

	if limit != "" {
		h.metrics.RecordLimitExceeded(limit)
		h.logger.Warn().
			Str("limit", limit).
			Str("reason", reason).
			Msg("Segment limit exceeded, ending provider stream")
		h.reset()
		if err := h.sink.EndStream(); err != nil {
			h.logger.Error().Err(err).Msg("Failed to end provider stream")
		}
		return fmt.Errorf("%w: %s", ErrLimitExceeded, reason)
	}

	err := h.sink.SendAudio(ctx, audio)
	if errors.Is(err, stt.ErrNoActiveRun) {
		h.reset()
		return err
	}
	if err == nil {
		h.metrics.RecordAudioReceived(len(audio))
	}
	return err
}

// checkLimits must be called with mu held.
func (h *Handler) checkLimits() (string, string) {
	l := h.cfg.Limits
	if l.MaxAudioBytes > 0 && h.audioBytes > l.MaxAudioBytes {
		return "audio_bytes", fmt.Sprintf("max audio bytes exceeded: %d > %d", h.audioBytes, l.MaxAudioBytes)
	}
	if elapsed := h.now().Sub(h.segmentStart); l.MaxDuration > 0 && elapsed > l.MaxDuration {
		return "duration", fmt.Sprintf("max duration exceeded: %v > %v", elapsed, l.MaxDuration)
	}
	if l.MaxFrames > 0 && h.frames > l.MaxFrames {
		return "frames", fmt.Sprintf("max frames exceeded: %d > %d", h.frames, l.MaxFrames)
	}
	return "", ""
}

// reset starts usage accounting over with the next frame.
func (h *Handler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.segmentStart = time.Time{}
	h.audioBytes = 0
	h.frames = 0
}

// Pump reads frames from r until EOF or ctx is done.
// Dropped frames are logged and skipped.
func (h *Handler) Pump(ctx context.Context, r io.Reader) error {
	var tick <-chan time.Time
	if h.cfg.FrameInterval > 0 {
		ticker := time.NewTicker(h.cfg.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	buf := make([]byte, h.cfg.FrameSize)
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if sendErr := h.SendAudio(ctx, frame); sendErr != nil {
				h.logger.Debug().Err(sendErr).Int("bytes", n).Msg("Audio frame dropped")
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			h.logger.Info().Msg("Audio source exhausted")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}
}

// SegmentMetrics holds current segment usage metrics.
type SegmentMetrics struct {
	AudioBytes int64
	Frames     int
	Duration   time.Duration
	Segments   int
}

// GetSegmentMetrics returns current segment metrics for observability.
func (h *Handler) GetSegmentMetrics() SegmentMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	var d time.Duration
	if !h.segmentStart.IsZero() {
		d = h.now().Sub(h.segmentStart)
	}
	return SegmentMetrics{
		AudioBytes: h.audioBytes,
		Frames:     h.frames,
		Duration:   d,
		Segments:   h.segments,
	}
}
