package translator

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/translate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type translateCall struct {
	inputs []string
	target language.Tag
	opts   *translate.Options
}

type fakeTranslateClient struct {
	calls []translateCall
	out   []translate.Translation
	err   error
}

func (f *fakeTranslateClient) Translate(_ context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error) {
	f.calls = append(f.calls, translateCall{inputs: inputs, target: target, opts: opts})
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func (f *fakeTranslateClient) Close() error { return nil }

func TestTranslate_NoopCases(t *testing.T) {
	client := &fakeTranslateClient{}
	g := &GoogleTranslator{client: client}

	got, err := g.Translate(context.Background(), "", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = g.Translate(context.Background(), "hello", "zh-cn", "zh-CN")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	assert.Empty(t, client.calls)
}

func TestTranslate_NormalizesCodes(t *testing.T) {
	client := &fakeTranslateClient{out: []translate.Translation{{Text: "你好"}}}
	g := &GoogleTranslator{client: client}

	got, err := g.Translate(context.Background(), "Hello", "en", "zh-cn")
	require.NoError(t, err)
	assert.Equal(t, "你好", got)

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Equal(t, []string{"Hello"}, call.inputs)
	assert.Equal(t, "zh-CN", call.target.String())
	assert.Equal(t, "en", call.opts.Source.String())
	assert.Equal(t, translate.Text, call.opts.Format)
}

func TestTranslate_Error(t *testing.T) {
	client := &fakeTranslateClient{err: errors.New("quota exceeded")}
	g := &GoogleTranslator{client: client}

	_, err := g.Translate(context.Background(), "Hello", "en", "fr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestTranslate_EmptyResponse(t *testing.T) {
	g := &GoogleTranslator{client: &fakeTranslateClient{}}

	_, err := g.Translate(context.Background(), "Hello", "en", "fr")
	require.Error(t, err)
}

func TestName(t *testing.T) {
	assert.Equal(t, "google_translate", (&GoogleTranslator{}).Name())
}
