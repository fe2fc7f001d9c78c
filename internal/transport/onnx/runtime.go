// Package onnx runs CLIP text and image encoders exported to ONNX in-process.
package onnx

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kailas-cloud/flagsearch/internal/domain"
)

const provider = "onnx"

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment loads the onnxruntime shared library once per process.
// Later calls return the first outcome regardless of libPath.
func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("initialize onnxruntime: %w", err)
		}
	})
	return envErr
}

// Shutdown releases the onnxruntime environment. Call after every encoder is closed.
func Shutdown() error {
	if !ort.IsInitialized() {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("destroy onnxruntime: %w", err)
	}
	return nil
}

// session serialises Run calls on one ONNX model.
type session struct {
	mu    sync.Mutex
	s     *ort.DynamicAdvancedSession
	model string
}

func newSession(modelPath string, inputs, outputs []string, threads int) (*session, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer func() { _ = opts.Destroy() }()

	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	s, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return &session{s: s, model: modelPath}, nil
}

// run executes the model and returns a copy of the first (float32) output with its shape.
func (s *session) run(inputs []ort.Value) ([]int64, []float32, error) {
	outputs := []ort.Value{nil}

	s.mu.Lock()
	if s.s == nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: session closed", domain.ErrEncoderUnavailable)
	}
	err := s.s.Run(inputs, outputs)
	s.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: run %s: %w", domain.ErrEncoderFailure, s.model, err)
	}
	if outputs[0] == nil {
		return nil, nil, fmt.Errorf("%w: %s produced no output", domain.ErrEncoderFailure, s.model)
	}
	defer func() { _ = outputs[0].Destroy() }()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s output is not float32", domain.ErrEncoderFailure, s.model)
	}
	shape := t.GetShape()
	data := make([]float32, len(t.GetData()))
	copy(data, t.GetData())
	return []int64(shape), data, nil
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s == nil {
		return nil
	}
	err := s.s.Destroy()
	s.s = nil
	if err != nil {
		return fmt.Errorf("destroy session %s: %w", s.model, err)
	}
	return nil
}

func (s *session) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s == nil {
		return fmt.Errorf("%w: session %s closed", domain.ErrEncoderUnavailable, s.model)
	}
	return nil
}

func requireFile(kind, path string) error {
	if path == "" {
		return fmt.Errorf("%s path is required", kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, path, err)
	}
	if info.IsDir() {
		return errors.New(kind + " " + path + " is a directory")
	}
	return nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}
