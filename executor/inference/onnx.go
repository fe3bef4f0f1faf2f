// Package inference provides the concrete policy/value oracle: an ONNX
// Runtime session over an exported network, with request batching so
// many sequential searches can share one GPU-friendly batch. How the
// network is built and trained is out of scope here; this package only
// runs an exported model file and post-processes its two heads.
package inference

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/scorefour/scorefour/executor/convert"
	"github.com/scorefour/scorefour/game"
)

const (
	// InputSize is the flattened (4,4,4,4) encoded state.
	InputSize  = convert.FloatSize
	PolicySize = game.NumActions
	ValueSize  = 1
)

const (
	DefaultBatchSize    = 128
	DefaultBatchTimeout = 1 * time.Millisecond
)

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// OnnxClient implements mcts.Predictor using ONNX Runtime with batching.
// The model's policy head emits raw logits; Predict applies softmax so
// callers always see non-negative priors. The value head is tanh-bounded
// in the network itself.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	cfg          OnnxClientConfig

	quit      chan struct{}
	loopDone  chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// errClientClosed is returned for requests that arrive after Close.
var errClientClosed = fmt.Errorf("onnx client is closed")

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout})
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if runtime.GOOS == "linux" {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			candidates := []string{
				"libonnxruntime.so",
				"libonnxruntime.so.1",
			}
			for _, name := range candidates {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to init ort: %w", ortInitErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputs := []string{"input"}
	outputs := []string{"policy", "value"}

	// Intra-op threads stay at 1: many search workers already keep the
	// CPU busy between batches.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	// Use CUDA when available, fall back to CPU otherwise.
	if os.Getenv("SCOREFOUR_ORT_DISABLE_CUDA") == "" {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				fmt.Println("Failed to append CUDA provider:", err)
			}
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		quit:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	go client.batchLoop()

	return client, nil
}

// Close stops the batching loop, fails any queued requests, and then
// destroys the session. Predict calls made after Close fail immediately.
func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		<-c.loopDone
		err = c.session.Destroy()
	})
	return err
}

// Predict queues one encoded state for batched inference and blocks
// until its result arrives. The input is copied, so callers may reuse
// pooled encode buffers immediately.
func (c *OnnxClient) Predict(encoded []float32) ([]float32, float32, error) {
	if len(encoded) != InputSize {
		return nil, 0, fmt.Errorf("encoded state has %d floats, want %d", len(encoded), InputSize)
	}
	if c.closed.Load() {
		return nil, 0, errClientClosed
	}

	input := make([]float32, InputSize)
	copy(input, encoded)

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: input, respChan: respChan}:
	case <-c.quit:
		return nil, 0, errClientClosed
	}

	select {
	case resp := <-respChan:
		return resp.policy, resp.value, resp.err
	case <-c.loopDone:
		// The loop drains everything it has seen before exiting, so a
		// missing response means the request raced the shutdown drain.
		select {
		case resp := <-respChan:
			return resp.policy, resp.value, resp.err
		default:
			return nil, 0, errClientClosed
		}
	}
}

func (c *OnnxClient) batchLoop() {
	defer close(c.loopDone)

	batchInput := make([]float32, 0, c.cfg.BatchSize*InputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)

			if len(requests) >= c.cfg.BatchSize {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		case <-ticker.C:
			if len(requests) > 0 {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		case <-c.quit:
			// Fail whatever is in flight or queued; the session is about
			// to be destroyed.
			c.failBatch(requests, errClientClosed)
			for {
				select {
				case req := <-c.requestsChan:
					c.failBatch([]inferenceRequest{req}, errClientClosed)
				default:
					return
				}
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	currentBatchSize := int64(len(requests))

	inputShape := []int64{currentBatchSize, convert.Planes, game.Depth, game.Rows, game.Cols}
	inputTensor, err := ort.NewTensor(ort.NewShape(inputShape...), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, PolicySize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, ValueSize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()

	for i, req := range requests {
		policy := make([]float32, PolicySize)
		copy(policy, policyData[i*PolicySize:(i+1)*PolicySize])
		softmaxInPlace(policy)

		req.respChan <- inferenceResponse{
			policy: policy,
			value:  valueData[i*ValueSize],
			err:    nil,
		}
	}
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

// softmaxInPlace converts policy logits to probabilities, shifting by
// the max logit for numerical stability.
func softmaxInPlace(logits []float32) {
	if len(logits) == 0 {
		return
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float32
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxV)))
		logits[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range logits {
			logits[i] *= inv
		}
	}
}
