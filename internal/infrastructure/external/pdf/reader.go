package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Document is the text layer of a PDF
type Document struct {
	Pages int
	Text  string
}

// Reader reads PDF bytes with MuPDF
type Reader struct {
	maxPages int
	logger   *zap.Logger
}

// NewReader creates a reader that looks at no more than maxPages pages (0 means all)
func NewReader(maxPages int, logger *zap.Logger) *Reader {
	return &Reader{maxPages: maxPages, logger: logger}
}

// ReadText returns the concatenated text of the first pages
func (r *Reader) ReadText(content []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := r.pageLimit(doc.NumPage())
	var sb strings.Builder
	for n := 0; n < pages; n++ {
		text, err := doc.Text(n)
		if err != nil {
			r.logger.Warn("Failed to extract page text", zap.Int("page", n), zap.Error(err))
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	return &Document{Pages: doc.NumPage(), Text: strings.TrimSpace(sb.String())}, nil
}

// RenderPages renders the first pages as JPEG images for vision models
func (r *Reader) RenderPages(content []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := r.pageLimit(doc.NumPage())
	images := make([][]byte, 0, pages)
	for n := 0; n < pages; n++ {
		img, err := doc.Image(n)
		if err != nil {
			r.logger.Warn("Failed to render page", zap.Int("page", n), zap.Error(err))
			continue
		}

		data, err := EncodeJPEG(img)
		if err != nil {
			r.logger.Warn("Failed to encode page", zap.Int("page", n), zap.Error(err))
			continue
		}
		images = append(images, data)
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("no pages rendered from PDF")
	}
	return images, nil
}

func (r *Reader) pageLimit(total int) int {
	if r.maxPages > 0 && total > r.maxPages {
		return r.maxPages
	}
	return total
}

// EncodeJPEG encodes an image at the quality used for vision requests
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// IsPDF reports whether content starts with the PDF magic header
func IsPDF(content []byte) bool {
	return bytes.HasPrefix(content, []byte("%PDF-"))
}
