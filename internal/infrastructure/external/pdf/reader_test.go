package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("PK\x03\x04")))
	assert.False(t, IsPDF(nil))
}

func TestEncodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	data, err := EncodeJPEG(img)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8, decoded.Bounds().Dx())
}

func TestReader_PageLimit(t *testing.T) {
	r := NewReader(2, zap.NewNop())
	assert.Equal(t, 2, r.pageLimit(5))
	assert.Equal(t, 1, r.pageLimit(1))

	all := NewReader(0, zap.NewNop())
	assert.Equal(t, 7, all.pageLimit(7))
}

func TestReader_RejectsGarbage(t *testing.T) {
	r := NewReader(2, zap.NewNop())

	_, err := r.ReadText([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
