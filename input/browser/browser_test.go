package browser

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	surface "github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
)

func TestKeyFor(t *testing.T) {
	k, err := keyFor("Ctrl")
	require.NoError(t, err)
	assert.Equal(t, input.ControlLeft, k)

	k, err = keyFor("a")
	require.NoError(t, err)
	assert.Equal(t, input.Key('a'), k)

	k, err = keyFor("f5")
	require.NoError(t, err)
	assert.Equal(t, input.F5, k)

	_, err = keyFor("hyper")
	assert.ErrorIs(t, err, surface.ErrUnsupported)
	_, err = keyFor("é")
	assert.ErrorIs(t, err, surface.ErrUnsupported)
}

func TestDecodePixel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 12, G: 200, B: 99, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	c, err := decodePixel(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, models.RGB{R: 12, G: 200, B: 99}, c)

	_, err = decodePixel([]byte("not an image at all"))
	assert.Error(t, err)
}
