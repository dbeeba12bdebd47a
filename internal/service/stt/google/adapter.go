// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"speech-insights-service/internal/observability/metrics"
	"speech-insights-service/internal/service/audio"
	"speech-insights-service/internal/service/stt"
)

const providerName = "google"

// Config holds Google STT configuration.
type Config struct {
	Credential        string // service account JSON path or API key
	Region            string // e.g. "us-central1"; empty or "global" uses the global endpoint
	LanguageCode      string
	Model             string
	EnablePunctuation bool
	ChunkSize         int // bytes of audio per streaming request
	InterimResults    bool
	ProfanityFilter   bool
	MaxAlternatives   int32
}

// DefaultConfig returns sensible default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:      "en-US",
		EnablePunctuation: true,
		ChunkSize:         16 * 1024,
		InterimResults:    true,
		MaxAlternatives:   1,
	}
}

// Provider owns the Speech client shared by every session.
type Provider struct {
	client  *speech.Client
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a Speech client for the configured credential and region.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultConfig().LanguageCode
	}

	c, err := speech.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("google stt: create client: %w", err)
	}

	return &Provider{
		client:  c,
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
		log:     log.With().Str("component", "stt").Str("sttProvider", providerName).Logger(),
	}, nil
}

// Factory returns an stt.Factory producing one adapter per session.
func (p *Provider) Factory() stt.Factory {
	return func(ctx context.Context) (stt.Adapter, error) {
		return &Adapter{
			client:  p.client,
			cfg:     p.cfg,
			metrics: p.metrics,
			log:     p.log,
		}, nil
	}
}

// Close releases the underlying gRPC connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// clientOptions maps the credential and region onto client options.
func clientOptions(cfg Config) []option.ClientOption {
	var opts []option.ClientOption
	if ep := regionalEndpoint(cfg.Region); ep != "" {
		opts = append(opts, option.WithEndpoint(ep))
	}
	if cfg.Credential != "" {
		if fi, err := os.Stat(cfg.Credential); err == nil && !fi.IsDir() {
			opts = append(opts, option.WithCredentialsFile(cfg.Credential))
		} else {
			opts = append(opts, option.WithAPIKey(cfg.Credential))
		}
	}
	return opts
}

func regionalEndpoint(region string) string {
	region = strings.TrimSpace(strings.ToLower(region))
	if region == "" || region == "global" {
		return ""
	}
	return region + "-speech.googleapis.com:443"
}

// encodingFor maps a WAV format onto the Speech API encoding.
func encodingFor(f audio.WAVFormat) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch {
	case f.AudioFormat == audio.FormatPCM && f.BitsPerSample == 16:
		return speechpb.RecognitionConfig_LINEAR16, nil
	case f.AudioFormat == audio.FormatMuLaw && f.BitsPerSample == 8:
		return speechpb.RecognitionConfig_MULAW, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
			fmt.Errorf("google stt: unsupported wav format %d with %d bits per sample", f.AudioFormat, f.BitsPerSample)
	}
}

// Adapter implements stt.Adapter for one continuous recognition session.
type Adapter struct {
	client  *speech.Client
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	file   *os.File
	wg     sync.WaitGroup
}

// StartContinuous opens the WAV file, sends the streaming config and starts
// the send and receive loops.
func (a *Adapter) StartContinuous(ctx context.Context, audioPath string, cb stt.Callback) error {
	f, err := os.Open(audioPath)
	if err != nil {
		return fmt.Errorf("google stt: open audio: %w", err)
	}
	format, err := audio.ReadWAVHeader(f)
	if err != nil {
		f.Close()
		a.metrics.RecordSTTError(providerName, "invalid_audio")
		return fmt.Errorf("google stt: %w", err)
	}
	encoding, err := encodingFor(format)
	if err != nil {
		f.Close()
		a.metrics.RecordSTTError(providerName, "invalid_audio")
		return err
	}

	sctx, cancel := context.WithCancel(ctx)
	stream, err := a.client.StreamingRecognize(sctx)
	if err != nil {
		cancel()
		f.Close()
		a.metrics.RecordSTTError(providerName, status.Code(err).String())
		return fmt.Errorf("google stt: open stream: %w", err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   encoding,
					SampleRateHertz:            int32(format.SampleRate),
					AudioChannelCount:          int32(format.Channels),
					LanguageCode:               a.cfg.LanguageCode,
					Model:                      a.cfg.Model,
					EnableAutomaticPunctuation: a.cfg.EnablePunctuation,
					ProfanityFilter:            a.cfg.ProfanityFilter,
					MaxAlternatives:            a.cfg.MaxAlternatives,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		f.Close()
		a.metrics.RecordSTTError(providerName, status.Code(err).String())
		return fmt.Errorf("google stt: send config: %w", err)
	}

	a.mu.Lock()
	a.cancel = cancel
	a.file = f
	a.mu.Unlock()

	a.log.Debug().
		Str("encoding", encoding.String()).
		Uint32("sampleRate", format.SampleRate).
		Uint16("channels", format.Channels).
		Uint32("dataBytes", format.DataSize).
		Msg("streaming recognition started")

	cb.OnSessionStarted()

	a.wg.Add(2)
	go a.sendAudio(stream, f)
	go a.listen(sctx, stream, cb)
	return nil
}

// sendAudio streams the PCM payload and half-closes the stream at EOF.
func (a *Adapter) sendAudio(stream speechpb.Speech_StreamingRecognizeClient, r io.Reader) {
	defer a.wg.Done()
	defer func() {
		if err := stream.CloseSend(); err != nil {
			a.log.Debug().Err(err).Msg("close send failed")
		}
	}()

	buf := make([]byte, a.cfg.ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sendErr := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: append([]byte(nil), buf[:n]...),
				},
			})
			if sendErr != nil {
				// The real cause is reported by Recv.
				return
			}
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			a.log.Error().Err(err).Msg("reading audio file failed")
			return
		}
	}
}

// listen receives responses until the stream ends and translates them into
// callback events. The session stop is always reported last.
func (a *Adapter) listen(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	defer a.wg.Done()
	defer cb.OnSessionStopped()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			code := status.Code(err)
			if ctx.Err() != nil {
				code = codes.Canceled
			}
			a.metrics.RecordSTTError(providerName, code.String())
			cb.OnCanceled(fmt.Errorf("google stt: %w", err))
			return
		}
		if resp.GetError() != nil && resp.GetError().GetCode() != int32(codes.OK) {
			a.metrics.RecordSTTError(providerName, codes.Code(resp.GetError().GetCode()).String())
			cb.OnCanceled(fmt.Errorf("google stt: %s", resp.GetError().GetMessage()))
			return
		}

		for _, r := range resp.GetResults() {
			cb.OnRecognized(toEvent(r))
		}
	}
}

// toEvent maps one streaming result to a recognition event.
func toEvent(r *speechpb.StreamingRecognitionResult) stt.Event {
	ev := stt.Event{Offset: r.GetResultEndTime().AsDuration()}

	alts := r.GetAlternatives()
	if len(alts) == 0 || strings.TrimSpace(alts[0].GetTranscript()) == "" {
		ev.Reason = stt.ReasonNoMatch
		if !r.GetIsFinal() {
			ev.Reason = stt.ReasonRecognizingSpeech
		}
		return ev
	}

	ev.Text = strings.TrimSpace(alts[0].GetTranscript())
	if r.GetIsFinal() {
		ev.Reason = stt.ReasonRecognizedSpeech
		ev.Confidence = float64(alts[0].GetConfidence())
	} else {
		ev.Reason = stt.ReasonRecognizingSpeech
	}
	return ev
}

// Close cancels the stream, waits for both loops and closes the audio file.
func (a *Adapter) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	f := a.file
	a.cancel = nil
	a.file = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	a.wg.Wait()
	return f.Close()
}
