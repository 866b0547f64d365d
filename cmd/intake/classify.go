package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/garyjia/invoice-intake/internal/infrastructure/external/pdf"
)

var (
	classifyAmount     string
	classifyConfidence float64
	classifyVendor     string
	classifyBillTo     string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Classify a document and show the decision under the configured rules",
	Long: `Reads a PDF text layer (or a plain text file), prints the document type, its score
and the cues that matched, then evaluates it with the given amount and confidence.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyAmount, "amount", "0", "invoice total to evaluate")
	classifyCmd.Flags().Float64Var(&classifyConfidence, "confidence", 1.0, "extraction confidence to evaluate")
	classifyCmd.Flags().StringVar(&classifyVendor, "vendor", "", "vendor name")
	classifyCmd.Flags().StringVar(&classifyBillTo, "bill-to", "", "bill-to name")
}

type classifyOutput struct {
	File     string         `json:"file"`
	Chars    int            `json:"chars"`
	Scoring  rules.Scoring  `json:"classification"`
	Decision rules.Decision `json:"decision"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	amount, err := decimal.NewFromString(classifyAmount)
	if err != nil {
		return fmt.Errorf("invalid --amount %q", classifyAmount)
	}
	rulesCfg, err := cfg.Rules()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	text := string(content)
	if pdf.IsPDF(content) {
		doc, err := pdf.NewReader(cfg.OpenAI.MaxPages, logger).ReadText(content)
		if err != nil {
			return err
		}
		text = doc.Text
	}

	out := classifyOutput{
		File:    args[0],
		Chars:   len(text),
		Scoring: rules.Score(text),
		Decision: rules.Evaluate(rules.Input{
			Amount:     amount,
			Confidence: classifyConfidence,
			Text:       text,
			Vendor:     classifyVendor,
			BillTo:     classifyBillTo,
		}, rulesCfg),
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
