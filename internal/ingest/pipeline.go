// Package ingest turns a receipt photo into a draft receipt for review.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"struk/internal/core"
	"struk/internal/log"
)

// State is a step of a single ingestion.
type State string

const (
	StateCaptured         State = "captured"
	StateSubmitted        State = "submitted"
	StateExtracted        State = "extracted"
	StateExtractionFailed State = "extraction_failed"
)

// Extractor reads the receipt image at path and returns the model's raw text.
type Extractor interface {
	Extract(ctx context.Context, imagePath, mimeType string) (string, error)
}

// Config holds ingestion limits
type Config struct {
	// MaxBytes caps the image size (default: 5 MiB)
	MaxBytes int64

	// TempDir holds images while they are being extracted (default: os.TempDir)
	TempDir string

	// Timeout bounds the extraction call (default: 30s)
	Timeout time.Duration

	Balance core.BalancePolicy
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxBytes: 5 << 20,
		Timeout:  30 * time.Second,
		Balance:  core.DefaultBalancePolicy(),
	}
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Draft is an extracted receipt awaiting human confirmation.
type Draft struct {
	Receipt  core.Receipt `json:"receipt"`
	RawText  string       `json:"rawText"`
	Warnings []string     `json:"warnings"`
}

type Pipeline struct {
	extractor Extractor
	config    Config
	logger    *log.Logger
	observe   func(State)
}

func NewPipeline(extractor Extractor, config Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Discard()
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultConfig().MaxBytes
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Pipeline{
		extractor: extractor,
		config:    config,
		logger:    logger.WithComponent(log.ComponentIngest),
	}
}

// WithObserver registers fn to be called on every state transition.
func (p *Pipeline) WithObserver(fn func(State)) *Pipeline {
	p.observe = fn
	return p
}

func (p *Pipeline) transition(ctx context.Context, s State) {
	p.logger.DebugContext(ctx, "Ingestion state", "state", string(s))
	if p.observe != nil {
		p.observe(s)
	}
}

// Ingest captures the image, runs extraction and parses the result. It never
// persists anything. Extraction and cleanup of the temporary image run to
// completion even when ctx is cancelled.
func (p *Pipeline) Ingest(ctx context.Context, image io.Reader) (*Draft, error) {
	data, mimeType, err := p.read(image)
	if err != nil {
		return nil, err
	}

	path, err := p.capture(data, mimeType)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(ctx, path)
	p.transition(ctx, StateCaptured)

	extractCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.Timeout)
	defer cancel()

	p.transition(ctx, StateSubmitted)
	started := time.Now()
	raw, err := p.extractor.Extract(extractCtx, path, mimeType)
	if err != nil {
		p.transition(ctx, StateExtractionFailed)
		reason := "extractor unavailable"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "extractor timed out"
		}
		p.logger.ErrorContext(ctx, "Extraction call failed",
			log.FieldOperation, log.OpExtract,
			log.FieldErrorKind, log.ErrorTypeExtraction,
			log.FieldError, err)
		return nil, &core.ExtractionError{Reason: reason, RawText: raw, Cause: err}
	}

	receipt, err := ParseExtraction(raw)
	if err != nil {
		p.transition(ctx, StateExtractionFailed)
		p.logger.WarnContext(ctx, "Extractor output rejected",
			log.FieldOperation, log.OpExtract,
			log.FieldErrorKind, log.ErrorTypeExtraction,
			log.FieldError, err)
		return nil, err
	}
	p.transition(ctx, StateExtracted)

	draft := &Draft{Receipt: receipt, RawText: raw, Warnings: p.warnings(&receipt)}
	p.logger.InfoContext(ctx, "Receipt extracted",
		log.FieldOperation, log.OpExtract,
		log.FieldCount, len(receipt.Items),
		log.FieldDuration, time.Since(started).Milliseconds())
	return draft, nil
}

// read enforces the size cap and sniffs the content type.
func (p *Pipeline) read(image io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(image, p.config.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", core.MissingField("image")
	}
	if int64(len(data)) > p.config.MaxBytes {
		return nil, "", core.NewValidationError("image", fmt.Sprintf("exceeds the %d byte limit", p.config.MaxBytes))
	}
	mimeType := http.DetectContentType(data)
	if _, ok := allowedTypes[mimeType]; !ok {
		return nil, "", core.NewValidationError("image", fmt.Sprintf("type %s is not supported, use JPEG, PNG or WEBP", mimeType))
	}
	return data, mimeType, nil
}

func (p *Pipeline) capture(data []byte, mimeType string) (string, error) {
	f, err := os.CreateTemp(p.config.TempDir, "receipt-*"+allowedTypes[mimeType])
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp image: %w", err)
	}
	return f.Name(), nil
}

func (p *Pipeline) cleanup(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.WarnContext(ctx, "Failed to remove temp image", "path", path, log.FieldError, err)
	}
}

// warnings lists what the reviewer still has to fix before the draft can
// be saved, and a total that does not balance.
func (p *Pipeline) warnings(r *core.Receipt) []string {
	out := []string{}
	if err := core.ValidateReceipt(r); err != nil {
		out = append(out, err.Error())
	}
	if p.config.Balance.Mode != core.BalanceOff {
		if err := p.config.Balance.CheckBalance(r); err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}
