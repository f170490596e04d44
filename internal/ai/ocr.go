package ai

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// OCRClient extracts text from an uploaded answer image. An empty result
// is not an error: the grader falls back to any raw text payload.
type OCRClient interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// TesseractOCR shells out to the tesseract binary. It is the default OCR
// collaborator for deployments without a managed OCR service.
type TesseractOCR struct {
	Lang    string
	Timeout time.Duration
}

func NewTesseractOCR(lang string) *TesseractOCR {
	if lang == "" {
		lang = "eng"
	}
	return &TesseractOCR{Lang: lang, Timeout: 20 * time.Second}
}

func (t *TesseractOCR) ExtractText(ctx context.Context, image []byte) (string, error) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		return "", errors.New("tesseract not found in PATH")
	}

	f, err := os.CreateTemp("", "answer-*.img")
	if err != nil {
		return "", err
	}
	defer func() { f.Close(); os.Remove(f.Name()) }()
	if _, err := f.Write(image); err != nil {
		return "", err
	}

	args := []string{f.Name(), "stdout"}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "tesseract", args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.New(strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(out.String()), nil
}
