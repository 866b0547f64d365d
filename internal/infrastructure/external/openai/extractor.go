package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/entity"
	"github.com/garyjia/invoice-intake/internal/infrastructure/external/pdf"
	"github.com/garyjia/invoice-intake/internal/infrastructure/resilience"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultMinTextChars = 40

// ChatCompleter is the subset of the OpenAI client used by the extractor
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ExtractorConfig configures the LLM extractor
type ExtractorConfig struct {
	Model string
	// MinTextChars is the shortest PDF text layer worth sending as text; shorter
	// documents are rendered and sent to the vision model.
	MinTextChars int
}

// Extractor reads invoices with a chat completion model
type Extractor struct {
	client   ChatCompleter
	cfg      ExtractorConfig
	prompts  *PromptConfig
	reader   *pdf.Reader
	executor *resilience.Executor
	logger   *zap.Logger
}

// NewExtractor creates a new LLM extractor. A nil prompts uses DefaultPrompts.
func NewExtractor(client ChatCompleter, cfg ExtractorConfig, prompts *PromptConfig, reader *pdf.Reader, executor *resilience.Executor, logger *zap.Logger) *Extractor {
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = defaultMinTextChars
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), logger)
	}
	return &Extractor{
		client:   client,
		cfg:      cfg,
		prompts:  prompts,
		reader:   reader,
		executor: executor,
		logger:   logger,
	}
}

// NewClient builds the go-openai client, honouring a custom base URL. A zero timeout
// leaves the HTTP client without a deadline.
func NewClient(apiKey, baseURL string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(cfg)
}

type extractionResponse struct {
	Vendor        string          `json:"vendor"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   string          `json:"invoice_date"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	BillTo        string          `json:"bill_to"`
	Confidence    float64         `json:"confidence"`
	Content       string          `json:"content"`
}

// Extract reads the document text layer when it has one and falls back to the vision
// model for scanned PDFs and images. Every failure wraps port.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, filename string, content []byte) (*entity.ExtractedInvoice, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty document", port.ErrExtractionFailed)
	}

	var (
		req  openai.ChatCompletionRequest
		text string
		err  error
	)

	switch {
	case pdf.IsPDF(content):
		req, text, err = e.pdfRequest(filename, content)
	case strings.HasPrefix(http.DetectContentType(content), "image/"):
		req, err = e.visionRequest(filename, [][]byte{content}, http.DetectContentType(content))
	case strings.HasPrefix(http.DetectContentType(content), "text/plain"):
		text = string(content)
		req, err = e.textRequest(filename, text)
	default:
		err = fmt.Errorf("unsupported content type %s", http.DetectContentType(content))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrExtractionFailed, err)
	}

	raw, err := e.complete(ctx, req)
	if err != nil {
		e.logger.Error("Extraction call failed", zap.String("filename", filename), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", port.ErrExtractionFailed, err)
	}

	parsed, err := parseExtraction(raw)
	if err != nil {
		e.logger.Error("Failed to parse extraction response",
			zap.String("filename", filename),
			zap.String("content", raw),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", port.ErrExtractionFailed, err)
	}

	if text == "" {
		text = parsed.Content
	}

	invoice := &entity.ExtractedInvoice{
		Vendor:        strings.TrimSpace(parsed.Vendor),
		InvoiceNumber: strings.TrimSpace(parsed.InvoiceNumber),
		InvoiceDate:   strings.TrimSpace(parsed.InvoiceDate),
		Total:         parsed.Total,
		Currency:      strings.ToUpper(strings.TrimSpace(parsed.Currency)),
		Confidence:    clampConfidence(parsed.Confidence),
		RawChars:      len(content),
		Content:       text,
		BillTo:        strings.TrimSpace(parsed.BillTo),
	}

	e.logger.Info("Invoice extracted",
		zap.String("filename", filename),
		zap.String("vendor", invoice.Vendor),
		zap.String("total", invoice.TotalDisplay()),
		zap.Float64("confidence", invoice.Confidence))

	return invoice, nil
}

func (e *Extractor) pdfRequest(filename string, content []byte) (openai.ChatCompletionRequest, string, error) {
	if e.reader == nil {
		return openai.ChatCompletionRequest{}, "", errors.New("pdf reader is not configured")
	}

	doc, err := e.reader.ReadText(content)
	if err != nil {
		return openai.ChatCompletionRequest{}, "", err
	}

	if len(doc.Text) >= e.cfg.MinTextChars {
		req, err := e.textRequest(filename, doc.Text)
		return req, doc.Text, err
	}

	e.logger.Info("PDF has no usable text layer, using vision",
		zap.String("filename", filename),
		zap.Int("pages", doc.Pages),
		zap.Int("text_chars", len(doc.Text)))

	images, err := e.reader.RenderPages(content)
	if err != nil {
		return openai.ChatCompletionRequest{}, "", err
	}
	req, err := e.visionRequest(filename, images, "image/jpeg")
	return req, "", err
}

func (e *Extractor) textRequest(filename, text string) (openai.ChatCompletionRequest, error) {
	section := e.prompts.InvoiceExtraction
	prompt, err := renderTemplate(section.UserTemplate, map[string]interface{}{
		"Filename": filename,
		"Text":     text,
	})
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	return openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   section.MaxTokens,
		Temperature: section.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: section.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}, nil
}

func (e *Extractor) visionRequest(filename string, images [][]byte, mimeType string) (openai.ChatCompletionRequest, error) {
	section := e.prompts.VisionExtraction
	prompt, err := renderTemplate(section.UserTemplate, map[string]interface{}{
		"Filename": filename,
		"Pages":    len(images),
	})
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: prompt}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   section.MaxTokens,
		Temperature: section.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: section.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}, nil
}

func (e *Extractor) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var content string
	err := e.executor.Execute(ctx, "openai.extract", func(ctx context.Context) error {
		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices in completion response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	}, classifyError)
	return content, err
}

// classifyError maps go-openai errors onto the resilience status classification
func classifyError(err error) resilience.ErrorClassification {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return resilience.DefaultClassifier(&resilience.StatusError{Operation: "openai", StatusCode: apiErr.HTTPStatusCode})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return resilience.DefaultClassifier(&resilience.StatusError{Operation: "openai", StatusCode: reqErr.HTTPStatusCode})
	}
	return resilience.DefaultClassifier(err)
}

func parseExtraction(raw string) (*extractionResponse, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, errors.New("no JSON object in response")
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func clampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

// extractJSON returns the first balanced JSON object in content, tolerating code fences
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escapeNext:
			escapeNext = false
		case c == '\\':
			escapeNext = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

var _ port.Extractor = (*Extractor)(nil)
