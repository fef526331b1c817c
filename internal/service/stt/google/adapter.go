// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"github.com/thorwhalen/pacing/internal/models"
	"github.com/thorwhalen/pacing/internal/service/audio"
	"github.com/thorwhalen/pacing/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
	Punctuation   bool
}

// DefaultConfig returns the default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
		Punctuation:   true,
	}
}

// recognizer is the subset of speech.Client used here.
type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// Transcriber implements stt.Transcriber with synchronous Recognize calls,
// one request per chunk.
type Transcriber struct {
	client recognizer
	cfg    Config
}

var _ stt.Transcriber = (*Transcriber)(nil)

// New creates a Google transcriber.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Transcriber{client: c, cfg: cfg}, nil
}

// Transcribe sends the chunk as LINEAR16 audio and maps the response.
func (t *Transcriber) Transcribe(ctx context.Context, chunk audio.Chunk, sampleRate int, isFinal bool) (models.TranscriptionEvent, error) {
	if sampleRate <= 0 {
		sampleRate = t.cfg.SampleRateHz
	}
	resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   parseAudioEncoding(t.cfg.AudioEncoding),
			SampleRateHertz:            int32(sampleRate),
			LanguageCode:               t.cfg.LanguageCode,
			EnableAutomaticPunctuation: t.cfg.Punctuation,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: encodeLinear16(chunk.Samples)},
		},
	})
	if err != nil {
		return models.TranscriptionEvent{}, err
	}
	ev := eventFromResponse(resp)
	ev.IsPartial = !isFinal
	return ev, nil
}

// Name returns the transcriber name.
func (t *Transcriber) Name() string {
	return "GoogleSpeechTranscriber"
}

// ModelInfo describes the configured recognizer.
func (t *Transcriber) ModelInfo() stt.ModelInfo {
	return stt.ModelInfo{
		Name:     t.Name(),
		Version:  "v1",
		Language: t.cfg.LanguageCode,
		Type:     "cloud",
	}
}

// Close releases the underlying client.
func (t *Transcriber) Close() error {
	return t.client.Close()
}

// eventFromResponse joins the top alternative of every result. Confidence is
// the mean over results; an empty response yields an empty event.
func eventFromResponse(resp *speechpb.RecognizeResponse) models.TranscriptionEvent {
	ev := models.TranscriptionEvent{Timestamp: time.Now()}
	if resp == nil {
		return ev
	}

	var parts []string
	var total float64
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		total += float64(alts[0].GetConfidence())
	}
	if len(parts) > 0 {
		ev.Text = strings.Join(parts, " ")
		ev.Confidence = total / float64(len(parts))
	}
	return ev
}

// encodeLinear16 converts normalized float samples to 16-bit little-endian PCM.
func encodeLinear16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return buf
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
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
