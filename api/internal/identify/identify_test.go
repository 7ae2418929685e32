package identify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comic-vault/api/internal/imaging"
	"comic-vault/api/internal/metadata"
	"comic-vault/api/internal/metrics"
)

type fakeVision struct {
	reply string
	err   error
	calls int
	mode  imaging.ColorMode
}

func (f *fakeVision) Describe(_ context.Context, n *imaging.Normalized) (string, error) {
	f.calls++
	f.mode = n.Mode
	return f.reply, f.err
}

func pngCover(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 18))
	img.Set(3, 3, color.NRGBA{R: 255, A: 100})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gifCover(t *testing.T) []byte {
	t.Helper()
	pal := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pal, nil))
	return buf.Bytes()
}

func TestIdentify_OK(t *testing.T) {
	v := &fakeVision{reply: `{"title": "Amazing Spider-Man", "issue": "1"}`}
	rec, err := New(v).Identify(context.Background(), pngCover(t))
	require.NoError(t, err)
	assert.Equal(t, metadata.Record{"title": "Amazing Spider-Man", "issue": "1"}, rec)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, imaging.ModeRGB, v.mode)
}

func TestIdentify_DecodeErrorSkipsVision(t *testing.T) {
	v := &fakeVision{reply: "{}"}
	_, err := New(v).Identify(context.Background(), []byte("definitely not an image"))
	require.Error(t, err)
	assert.Equal(t, KindDecode, KindOf(err))
	var de *imaging.DecodeError
	assert.ErrorAs(t, err, &de)
	assert.Equal(t, 0, v.calls)
}

func TestIdentify_EmptyUpload(t *testing.T) {
	v := &fakeVision{}
	_, err := New(v).Identify(context.Background(), nil)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.Equal(t, 0, v.calls)
}

func TestIdentify_UpstreamErrorSkipsParser(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	parserCalled := false
	p := func(s string) metadata.Result {
		parserCalled = true
		return metadata.Parse(s)
	}

	_, err := New(&fakeVision{err: boom}, WithParser(p)).Identify(context.Background(), pngCover(t))
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorIs(t, err, boom)
	assert.False(t, parserCalled)
}

func TestIdentify_FencedStrict(t *testing.T) {
	v := &fakeVision{reply: "```json\n{\"title\":\"Saga\"}\n```"}
	_, err := New(v).Identify(context.Background(), pngCover(t))
	require.Error(t, err)
	assert.Equal(t, KindParse, KindOf(err))
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestIdentify_FencedTolerant(t *testing.T) {
	v := &fakeVision{reply: "```json\n{\"title\":\"Saga\"}\n```"}
	rec, err := New(v, WithParser(metadata.ParseTolerant)).Identify(context.Background(), pngCover(t))
	require.NoError(t, err)
	assert.Equal(t, "Saga", rec["title"])
}

func TestIdentify_FormatNotAllowed(t *testing.T) {
	v := &fakeVision{reply: "{}"}
	svc := New(v, WithAllowedFormats(imaging.DefaultAllowedFormats))

	_, err := svc.Identify(context.Background(), gifCover(t))
	require.Error(t, err)
	assert.Equal(t, KindFormat, KindOf(err))
	assert.Contains(t, err.Error(), `"gif"`)
	assert.Equal(t, 0, v.calls)

	_, err = svc.Identify(context.Background(), pngCover(t))
	assert.NoError(t, err)
}

func TestIdentify_CountsResults(t *testing.T) {
	before := testutil.ToFloat64(metrics.IdentifyRequestsTotal.WithLabelValues(string(KindDecode)))
	_, _ = New(&fakeVision{}).Identify(context.Background(), []byte("nope"))
	after := testutil.ToFloat64(metrics.IdentifyRequestsTotal.WithLabelValues(string(KindDecode)))
	assert.Equal(t, before+1, after)
}

func TestKindOf_Foreign(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("x")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIdentify_PixelLimit(t *testing.T) {
	v := &fakeVision{reply: "{}"}
	_, err := New(v, WithMaxPixels(100)).Identify(context.Background(), pngCover(t))
	require.Error(t, err)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.ErrorIs(t, err, imaging.ErrTooLarge)
	assert.Equal(t, 0, v.calls)
}
