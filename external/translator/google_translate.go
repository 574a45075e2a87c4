package translator

import (
	"context"
	"fmt"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/translate"
	"github.com/foxseedlab/multilingo/internal/translator"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

const serviceName = "google_translate"

type GoogleTranslateConfig struct {
	CredentialsJSON string
}

type translateClient interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
	Close() error
}

type GoogleTranslator struct {
	client translateClient
}

func NewGoogleTranslator(ctx context.Context, cfg GoogleTranslateConfig) (*GoogleTranslator, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	client, err := translate.NewClient(ctx, option.WithAuthCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create translate client: %w", err)
	}
	return &GoogleTranslator{client: client}, nil
}

func (g *GoogleTranslator) Name() string {
	return serviceName
}

func (g *GoogleTranslator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if translator.IsNoop(text, src, dst) {
		return text, nil
	}
	target, err := language.Parse(translator.NormalizeLanguage(dst))
	if err != nil {
		return "", fmt.Errorf("target language %q: %w", dst, err)
	}
	opts := &translate.Options{Format: translate.Text}
	if src != "" {
		if source, err := language.Parse(translator.NormalizeLanguage(src)); err == nil {
			opts.Source = source
		}
	}

	out, err := g.client.Translate(ctx, []string{text}, target, opts)
	if err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", src, dst, err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("translate %s->%s: empty response", src, dst)
	}
	return out[0].Text, nil
}

func (g *GoogleTranslator) Shutdown() error {
	return g.client.Close()
}
