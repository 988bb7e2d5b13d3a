package model

import (
	"fmt"
	"math"
	"math/rand"

	"attnpool/pkg/model/attention"
	"attnpool/pkg/tensor"
)

// Encoder is the full model: encodings, a stack of attention layers and
// a final pooled head projection.
//
// Parameters are owned by the encoder and persist across forward calls;
// every intermediate tensor is created fresh per call. The forward pass
// never mutates parameters, so concurrent readers are safe as long as no
// external writer is updating weights.
type Encoder struct {
	Config    Config
	Encodings *Encodings
	Layers    []*attention.MultiHeadAttention
	WHead     *tensor.Tensor // (emb_dim, head_size)
	BHead     *tensor.Tensor // (head_size)
}

// NewEncoder creates an encoder with randomly initialized parameters.
func NewEncoder(config Config) (*Encoder, error) {
	return NewEncoderSeeded(config, rand.Int63())
}

// NewEncoderSeeded creates an encoder whose parameter initialization is
// driven by the given seed: two encoders built from the same
// configuration and seed are identical.
//
// All layer parameter sets are allocated eagerly; nothing is deferred to
// the first forward call.
func NewEncoderSeeded(config Config, seed int64) (*Encoder, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	enc := &Encoder{
		Config:    config,
		Encodings: NewEncodings(config),
		Layers:    make([]*attention.MultiHeadAttention, config.NumLayers),
		WHead:     tensor.NewTensor([]int{config.EmbeddingDim, config.HeadSize}),
		BHead:     tensor.NewTensor([]int{config.HeadSize}),
	}
	for i := range enc.Layers {
		enc.Layers[i] = attention.NewMultiHeadAttention(attention.Config{
			NumHeads:     config.NumHeads,
			EmbeddingDim: config.EmbeddingDim,
		})
	}

	initializeWeights(enc, rand.New(rand.NewSource(seed)))
	return enc, nil
}

// Forward runs one forward pass.
//
// ids: (batch, seq_length) integer token indices.
// Returns the pooled head projection (batch, head_size) and the attention
// probabilities of every layer stacked as
// (num_layers, batch, num_heads, seq_length, seq_length).
func (e *Encoder) Forward(ids *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	hidden, err := e.Encodings.Forward(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("encodings: %w", err)
	}

	scores := make([]*tensor.Tensor, len(e.Layers))
	for i, layer := range e.Layers {
		hidden, scores[i], err = layer.Forward(hidden)
		if err != nil {
			return nil, nil, fmt.Errorf("attention layer %d: %w", i, err)
		}
	}

	pooled, err := e.aggregate(hidden)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: %w", err)
	}

	// Head projection: (batch, emb_dim) @ (emb_dim, head_size) + bias.
	output, err := tensor.Matmul(pooled, e.WHead)
	if err != nil {
		return nil, nil, fmt.Errorf("head projection: %w", err)
	}
	output, err = tensor.Add(output, e.BHead)
	if err != nil {
		return nil, nil, fmt.Errorf("head bias: %w", err)
	}

	stacked, err := tensor.Stack(scores)
	if err != nil {
		return nil, nil, fmt.Errorf("stack attention scores: %w", err)
	}
	return output, stacked, nil
}

// aggregate pools hidden states (batch, seq, emb_dim) down to
// (batch, emb_dim): the position-0 vector for TOKEN, the sum over all
// positions otherwise.
func (e *Encoder) aggregate(hidden *tensor.Tensor) (*tensor.Tensor, error) {
	batchSize, _, embDim := hidden.Shape[0], hidden.Shape[1], hidden.Shape[2]

	if e.Config.AggMethod == AggToken {
		first, err := hidden.SliceN(
			[]int{0, 0, 0},
			[]int{batchSize, 1, embDim},
		)
		if err != nil {
			return nil, err
		}
		return first.Reshape([]int{batchSize, embDim}), nil
	}
	return tensor.SumAxis(hidden, 1)
}

// initializeWeights initializes trainable parameters: embedding tables
// from N(0, 0.02), linear weights with Xavier/Glorot uniform, biases left
// at zero. The fixed sinusoidal matrix is not touched.
func initializeWeights(enc *Encoder, rng *rand.Rand) {
	normalInit(rng, enc.Encodings.TokEmb, 0.02)
	normalInit(rng, enc.Encodings.PosEmb, 0.02)

	for _, layer := range enc.Layers {
		xavierUniformInit(rng, layer.WQuery)
		xavierUniformInit(rng, layer.WKey)
		xavierUniformInit(rng, layer.WValue)
		xavierUniformInit(rng, layer.WOut)
	}
	xavierUniformInit(rng, enc.WHead)
}

// normalInit fills a tensor with samples from N(0, std^2).
func normalInit(rng *rand.Rand, t *tensor.Tensor, std float32) {
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()) * std
	}
}

// xavierUniformInit fills a weight matrix from U[-limit, limit] with
// limit = sqrt(6 / (fan_in + fan_out)) over the last two dimensions.
func xavierUniformInit(rng *rand.Rand, t *tensor.Tensor) {
	if len(t.Shape) < 2 {
		for i := range t.Data {
			t.Data[i] = float32(rng.Float64()*2 - 1)
		}
		return
	}

	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))

	for i := range t.Data {
		t.Data[i] = float32(rng.Float64()*2*limit - limit)
	}
}
