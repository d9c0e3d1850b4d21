// Package anthropic implements analysis.Service on the Anthropic Files and
// Messages APIs.
package anthropic

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/analysis"
)

// Defaults for the generation request.
const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 8192
)

var filesBeta = []sdk.AnthropicBeta{sdk.AnthropicBetaFilesAPI2025_04_14}

// Config selects the model and endpoint.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	// MaxRetries is passed to the SDK; negative keeps the SDK default.
	MaxRetries int
}

// Service uploads files and generates text with file documents attached.
type Service struct {
	client    sdk.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// New builds a Service. An API key is required.
func New(cfg Config, logger *zap.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("anthropic: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &Service{
		client:    sdk.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}, nil
}

// Upload sends one staged file to the Files API.
func (s *Service) Upload(ctx context.Context, path string) (analysis.FileHandle, error) {
	// #nosec G304 -- path is a file this process staged itself.
	f, err := os.Open(path)
	if err != nil {
		return analysis.FileHandle{}, eris.Wrapf(err, "anthropic: open %s", path)
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	meta, err := s.client.Beta.Files.Upload(ctx, sdk.BetaFileUploadParams{
		File:  sdk.File(f, name, contentType),
		Betas: filesBeta,
	})
	if err != nil {
		return analysis.FileHandle{}, eris.Wrapf(err, "anthropic: upload %s", name)
	}
	s.logger.Debug("file uploaded", zap.String("file", name), zap.String("file_id", meta.ID))
	return analysis.FileHandle{ID: meta.ID, Name: name}, nil
}

// Generate sends the prompt with every file attached as a document and
// returns the concatenated text blocks of the reply.
func (s *Service) Generate(ctx context.Context, prompt string, files []analysis.FileHandle) (string, error) {
	blocks := make([]sdk.BetaContentBlockParamUnion, 0, len(files)+1)
	for _, f := range files {
		blocks = append(blocks, sdk.BetaContentBlockParamUnion{
			OfDocument: &sdk.BetaRequestDocumentBlockParam{
				Source: sdk.BetaRequestDocumentBlockSourceUnionParam{
					OfFile: &sdk.BetaFileDocumentSourceParam{FileID: f.ID},
				},
			},
		})
	}
	blocks = append(blocks, sdk.NewBetaTextBlock(prompt))

	msg, err := s.client.Beta.Messages.New(ctx, sdk.BetaMessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: s.maxTokens,
		Messages:  []sdk.BetaMessageParam{sdk.NewBetaUserMessage(blocks...)},
		Betas:     filesBeta,
	})
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	s.logger.Debug("analysis generated",
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return b.String(), nil
}
