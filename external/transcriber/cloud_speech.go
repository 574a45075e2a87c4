package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/multilingo/internal/transcriber"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

type CloudSpeechTranscriber struct {
	client          recognizeClient
	recognizer      string
	defaultLanguage string
	model           string
}

func NewCloudSpeechTranscriber(ctx context.Context, cfg CloudSpeechConfig) (*CloudSpeechTranscriber, error) {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	slog.Info("cloud speech client ready", "location", location, "model", cfg.Model)
	return newCloudSpeechTranscriber(client, cfg.ProjectID, location, cfg.Language, cfg.Model), nil
}

func newCloudSpeechTranscriber(client recognizeClient, projectID, location, language, model string) *CloudSpeechTranscriber {
	return &CloudSpeechTranscriber{
		client:          client,
		recognizer:      fmt.Sprintf("projects/%s/locations/%s/recognizers/_", projectID, location),
		defaultLanguage: language,
		model:           strings.TrimSpace(model),
	}
}

func (t *CloudSpeechTranscriber) Transcribe(ctx context.Context, samples []byte, hint string) (transcriber.Result, error) {
	if len(samples) == 0 {
		return transcriber.Result{Language: transcriber.UnknownLanguage}, nil
	}
	language := hint
	if language == "" {
		language = t.defaultLanguage
	}

	req := &speechpb.RecognizeRequest{
		Recognizer: t.recognizer,
		Config: &speechpb.RecognitionConfig{
			Model:         t.model,
			LanguageCodes: []string{language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   transcriber.SampleRateHertz,
					AudioChannelCount: transcriber.ChannelCount,
				},
			},
			Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{Content: samples},
	}

	resp, err := t.client.Recognize(ctx, req)
	if err != nil && isRetryableRecognizeError(err) {
		slog.Warn("recognize failed with retryable error; retrying once", "error", err, "language", language)
		resp, err = t.client.Recognize(ctx, req)
	}
	if err != nil {
		return transcriber.Result{}, fmt.Errorf("recognize (%s): %w", status.Code(err), err)
	}
	return collectResult(resp, hint), nil
}

func (t *CloudSpeechTranscriber) Shutdown() error {
	return t.client.Close()
}

func collectResult(resp *speechpb.RecognizeResponse, hint string) transcriber.Result {
	var parts []string
	var confidenceSum float32
	var confidenceCount int
	detected := ""
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		parts = append(parts, text)
		if c := alts[0].GetConfidence(); c > 0 {
			confidenceSum += c
			confidenceCount++
		}
		if detected == "" {
			detected = result.GetLanguageCode()
		}
	}

	res := transcriber.Result{Text: strings.Join(parts, " ")}
	switch {
	case hint != "":
		res.Language = hint
	case detected != "":
		res.Language = detected
	default:
		res.Language = transcriber.UnknownLanguage
	}
	if confidenceCount > 0 {
		avg := confidenceSum / float32(confidenceCount)
		res.Confidence = &avg
	}
	return res
}

func isRetryableRecognizeError(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.Aborted:
		return true
	}
	return false
}
