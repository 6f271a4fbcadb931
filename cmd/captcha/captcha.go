package captcha

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusdesk/cli/internal/captcha"
	"github.com/campusdesk/cli/internal/config"
	"github.com/campusdesk/cli/internal/format"
)

// CaptchaCmd represents the captcha command
var CaptchaCmd = &cobra.Command{
	Use:   "captcha",
	Short: "Offline CAPTCHA tools",
}

var solveCmd = &cobra.Command{
	Use:   "solve <image-file>",
	Short: "Solve a saved CAPTCHA image",
	Long:  "Classify a saved CAPTCHA image (PNG, JPEG, GIF, base64 or data URI) with the local model.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolve,
}

type glyph struct {
	Position   int     `json:"position" yaml:"position"`
	Char       string  `json:"char" yaml:"char"`
	Confidence float32 `json:"confidence" yaml:"confidence"`
}

func runSolve(cmd *cobra.Command, args []string) error {
	modelPath, _ := cmd.Flags().GetString("model")
	if modelPath == "" {
		modelPath = config.Get().Captcha.ModelPath
	}

	model, err := captcha.LoadModelFile(modelPath)
	if err != nil {
		return err
	}
	input, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	preds, err := captcha.NewSolver(model).Predict(input)
	if err != nil {
		return err
	}

	detail, _ := cmd.Flags().GetBool("detail")
	if !detail {
		text := make([]byte, len(preds))
		for i, p := range preds {
			text[i] = p.Char
		}
		return format.Print(string(text))
	}

	glyphs := make([]glyph, len(preds))
	for i, p := range preds {
		glyphs[i] = glyph{Position: i + 1, Char: string(p.Char), Confidence: p.Confidence}
	}
	return format.Print(glyphs)
}

func init() {
	solveCmd.Flags().String("model", "", "Model file (default captcha.model_path)")
	solveCmd.Flags().Bool("detail", false, "Show per-character confidence")
	CaptchaCmd.AddCommand(solveCmd)
}
