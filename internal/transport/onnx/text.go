package onnx

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/domain"
	"github.com/kailas-cloud/flagsearch/internal/metrics"
)

// Text model input names understood by the encoder.
const (
	InputIDs           = "input_ids"
	InputAttentionMask = "attention_mask"
)

// DefaultMaxSeqLen is the CLIP text context length.
const DefaultMaxSeqLen = 77

// TextConfig configures the local CLIP text encoder.
type TextConfig struct {
	LibraryPath   string
	ModelPath     string
	TokenizerPath string
	Inputs        []string // default: input_ids, attention_mask
	Output        string   // default: text_embeds
	MaxSeqLen     int
	PadID         int
	Threads       int
	Logger        *zap.Logger
}

// TextEncoder tokenises with a HuggingFace tokenizer.json and runs the CLIP text tower.
type TextEncoder struct {
	sess      *session
	tk        *tokenizer.Tokenizer
	inputs    []string
	maxSeqLen int
	padID     int
	logger    *zap.Logger
}

// NewTextEncoder loads the tokenizer and the text model.
func NewTextEncoder(cfg *TextConfig) (*TextEncoder, error) {
	inputs := cfg.Inputs
	if len(inputs) == 0 {
		inputs = []string{InputIDs, InputAttentionMask}
	}
	for _, name := range inputs {
		if name != InputIDs && name != InputAttentionMask {
			return nil, fmt.Errorf("unsupported text model input %q", name)
		}
	}
	if !slices.Contains(inputs, InputIDs) {
		return nil, fmt.Errorf("text model inputs must include %q", InputIDs)
	}
	output := cfg.Output
	if output == "" {
		output = "text_embeds"
	}
	maxLen := cfg.MaxSeqLen
	if maxLen <= 0 {
		maxLen = DefaultMaxSeqLen
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if err := requireFile("text model", cfg.ModelPath); err != nil {
		return nil, err
	}
	if err := requireFile("tokenizer", cfg.TokenizerPath); err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", cfg.TokenizerPath, err)
	}
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}
	sess, err := newSession(cfg.ModelPath, inputs, []string{output}, cfg.Threads)
	if err != nil {
		return nil, err
	}

	log.Info("ONNX text encoder loaded",
		zap.String("model", cfg.ModelPath),
		zap.Strings("inputs", inputs),
		zap.String("output", output),
		zap.Int("max_seq_len", maxLen),
	)
	return &TextEncoder{
		sess:      sess,
		tk:        tk,
		inputs:    inputs,
		maxSeqLen: maxLen,
		padID:     cfg.PadID,
		logger:    log,
	}, nil
}

// EncodeText implements domain.TextEncoder.
func (e *TextEncoder) EncodeText(ctx context.Context, text string) (domain.EncodingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode text: %w", err)
	}
	start := time.Now()

	enc, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		fail("text", "tokenize")
		return domain.EncodingResult{}, fmt.Errorf("%w: tokenize: %w", domain.ErrEncoderFailure, err)
	}
	ids, mask := fitSequence(enc.Ids, enc.AttentionMask, e.maxSeqLen, e.padID)

	values, err := e.inputValues(ids, mask)
	if err != nil {
		fail("text", "tensor")
		return domain.EncodingResult{}, err
	}
	defer destroyAll(values)

	shape, data, err := e.sess.run(values)
	if err != nil {
		fail("text", "inference")
		return domain.EncodingResult{}, err
	}
	vec, err := pooledEmbedding(shape, data, lastAttended(mask))
	if err != nil {
		fail("text", "output_shape")
		return domain.EncodingResult{}, err
	}

	succeed("text", start)
	e.logger.Debug("Text encoded",
		zap.String("provider", provider),
		zap.Int("tokens", len(enc.Ids)),
		zap.Int("dimensions", len(vec)),
		zap.Duration("duration", time.Since(start)),
	)
	return domain.EncodingResult{Embedding: vec, TotalTokens: len(enc.Ids)}, nil
}

// HealthCheck reports whether the model session is still open.
func (e *TextEncoder) HealthCheck(_ context.Context) error {
	return e.sess.alive()
}

// Close releases the model session.
func (e *TextEncoder) Close() error {
	return e.sess.close()
}

func (e *TextEncoder) inputValues(ids, mask []int64) ([]ort.Value, error) {
	shape := ort.NewShape(1, int64(len(ids)))
	values := make([]ort.Value, 0, len(e.inputs))
	for _, name := range e.inputs {
		data := ids
		if name == InputAttentionMask {
			data = mask
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			destroyAll(values)
			return nil, fmt.Errorf("%w: %s tensor: %w", domain.ErrEncoderFailure, name, err)
		}
		values = append(values, t)
	}
	return values, nil
}

// fitSequence truncates to maxLen keeping the final (end-of-text) token, then
// right-pads with padID. Padding positions get mask 0.
func fitSequence(ids, mask []int, maxLen, padID int) ([]int64, []int64) {
	n := min(len(ids), maxLen)
	outIDs := make([]int64, maxLen)
	outMask := make([]int64, maxLen)

	for i := 0; i < n; i++ {
		outIDs[i] = int64(ids[i])
		outMask[i] = 1
		if i < len(mask) {
			outMask[i] = int64(mask[i])
		}
	}
	if len(ids) > maxLen && maxLen > 0 {
		outIDs[maxLen-1] = int64(ids[len(ids)-1])
		outMask[maxLen-1] = 1
	}
	for i := n; i < maxLen; i++ {
		outIDs[i] = int64(padID)
	}
	return outIDs, outMask
}

// lastAttended returns the position of the last token with mask 1, or 0.
func lastAttended(mask []int64) int {
	for i := len(mask) - 1; i >= 0; i-- {
		if mask[i] != 0 {
			return i
		}
	}
	return 0
}

// pooledEmbedding extracts one vector from a model output: a [1, D] projection is
// used as-is; a [1, T, D] hidden state is pooled at token position pos.
func pooledEmbedding(shape []int64, data []float32, pos int) ([]float32, error) {
	switch {
	case len(shape) == 2 && shape[0] == 1 && shape[1] > 0:
		d := int(shape[1])
		if len(data) < d {
			break
		}
		return slices.Clone(data[:d]), nil
	case len(shape) == 3 && shape[0] == 1 && shape[2] > 0:
		t, d := int(shape[1]), int(shape[2])
		if pos < 0 || pos >= t || len(data) < t*d {
			break
		}
		return slices.Clone(data[pos*d : (pos+1)*d]), nil
	}
	return nil, fmt.Errorf("%w: unexpected output shape %v", domain.ErrEncoderFailure, shape)
}

func succeed(modality string, start time.Time) {
	metrics.EncoderRequestsTotal.WithLabelValues(provider, modality, "success").Inc()
	metrics.EncoderRequestDuration.WithLabelValues(provider, modality).Observe(time.Since(start).Seconds())
}

func fail(modality, errorType string) {
	metrics.EncoderRequestsTotal.WithLabelValues(provider, modality, "error").Inc()
	metrics.EncoderErrorsTotal.WithLabelValues(provider, modality, errorType).Inc()
}
