package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptSection is one prompt with its model parameters
type PromptSection struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the extractor
type PromptConfig struct {
	InvoiceExtraction PromptSection `yaml:"invoice_extraction"`
	VisionExtraction  PromptSection `yaml:"vision_extraction"`
}

const extractionFields = `  "vendor": "string",
  "invoice_number": "string",
  "invoice_date": "YYYY-MM-DD",
  "total": number,
  "currency": "3-letter ISO code",
  "bill_to": "string",
  "confidence": number between 0 and 1`

// DefaultPrompts returns the built-in prompts used when no prompts file is configured
func DefaultPrompts() *PromptConfig {
	system := "You extract structured fields from business documents. Always respond with a single valid JSON object."
	return &PromptConfig{
		InvoiceExtraction: PromptSection{
			Temperature: 0.1,
			MaxTokens:   1024,
			System:      system,
			UserTemplate: "Extract the following fields from the document named {{.Filename}}.\n" +
				"Respond with JSON:\n{\n" + extractionFields + "\n}\n" +
				"Use an empty string for missing text fields and 0 for a missing total. " +
				"confidence is how sure you are of the total.\n\nDocument text:\n{{.Text}}",
		},
		VisionExtraction: PromptSection{
			Temperature: 0.1,
			MaxTokens:   1024,
			System:      system,
			UserTemplate: "The attached {{.Pages}} page image(s) come from the document named {{.Filename}}.\n" +
				"Transcribe the visible text into the content field and extract the remaining fields.\n" +
				"Respond with JSON:\n{\n" + extractionFields + ",\n  \"content\": \"string\"\n}",
		},
	}
}

// LoadPrompts loads prompt configuration from a YAML file. Sections missing from the
// file keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
