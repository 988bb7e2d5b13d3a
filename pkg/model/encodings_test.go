package model

import (
	"math"
	"testing"

	"attnpool/pkg/tensor"
)

// TestSinusoidalMatrix verifies the sine/cosine fill rule for every
// position and dimension pair.
func TestSinusoidalMatrix(t *testing.T) {
	seqLen, d := 4, 8
	P := sinusoidalMatrix(seqLen, d)

	if !shapeEquals(P.Shape, []int{seqLen + 1, d}) {
		t.Fatalf("Expected shape [%d %d], got %v", seqLen+1, d, P.Shape)
	}

	for k := 0; k <= seqLen; k++ {
		for i := 0; i < d/2; i++ {
			denominator := math.Pow(10000, float64(2*i)/float64(d))
			wantSin := float32(math.Sin(float64(k) / denominator))
			wantCos := float32(math.Cos(float64(k) / denominator))

			if got := P.Get([]int{k, 2 * i}); got != wantSin {
				t.Errorf("P[%d][%d] = %f, want sin %f", k, 2*i, got, wantSin)
			}
			if got := P.Get([]int{k, 2*i + 1}); got != wantCos {
				t.Errorf("P[%d][%d] = %f, want cos %f", k, 2*i+1, got, wantCos)
			}
		}
	}

	// Row 0 alternates sin(0)=0 and cos(0)=1.
	for i := 0; i < d/2; i++ {
		if P.Get([]int{0, 2 * i}) != 0 || P.Get([]int{0, 2*i + 1}) != 1 {
			t.Errorf("Row 0 pair %d is (%f, %f), want (0, 1)",
				i, P.Get([]int{0, 2 * i}), P.Get([]int{0, 2*i + 1}))
		}
	}
}

// TestEncodingsTableSizing pins the table dimensions: the token table
// reserves two extra rows and both positional tables carry seq_length+1
// rows even though a forward pass consumes only seq_length of them.
func TestEncodingsTableSizing(t *testing.T) {
	config := DefaultConfig()
	enc := NewEncodings(config)

	if !shapeEquals(enc.TokEmb.Shape, []int{config.VocabSize + 2, config.EmbeddingDim}) {
		t.Errorf("TokEmb shape %v, want [%d %d]",
			enc.TokEmb.Shape, config.VocabSize+2, config.EmbeddingDim)
	}
	if !shapeEquals(enc.PosEmb.Shape, []int{config.SeqLength + 1, config.EmbeddingDim}) {
		t.Errorf("PosEmb shape %v, want [%d %d]",
			enc.PosEmb.Shape, config.SeqLength+1, config.EmbeddingDim)
	}
	if !shapeEquals(enc.SinPos.Shape, []int{config.SeqLength + 1, config.EmbeddingDim}) {
		t.Errorf("SinPos shape %v, want [%d %d]",
			enc.SinPos.Shape, config.SeqLength+1, config.EmbeddingDim)
	}
}

// TestEncodingsForward_ScaleAndShape verifies the sqrt(emb_dim) scaling
// with the positional tables zeroed out.
func TestEncodingsForward_ScaleAndShape(t *testing.T) {
	config := DefaultConfig()
	config.EmbeddingType = EmbeddingRandom // learned table, left at zero
	enc := NewEncodings(config)

	// Give token 3 a distinctive embedding.
	for d := 0; d < config.EmbeddingDim; d++ {
		enc.TokEmb.Set([]int{3, d}, float32(d))
	}

	ids := tensor.NewTensorFromData([]float32{3, 3, 3, 3}, []int{1, config.SeqLength})
	out, err := enc.Forward(ids)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	if !shapeEquals(out.Shape, []int{1, config.SeqLength, config.EmbeddingDim}) {
		t.Fatalf("Expected shape [1 %d %d], got %v", config.SeqLength, config.EmbeddingDim, out.Shape)
	}

	scale := float32(math.Sqrt(float64(config.EmbeddingDim)))
	for s := 0; s < config.SeqLength; s++ {
		for d := 0; d < config.EmbeddingDim; d++ {
			got := out.Get([]int{0, s, d})
			want := float32(d) * scale
			if math.Abs(float64(got-want)) > 1e-5 {
				t.Errorf("(0, %d, %d): got %f, want %f", s, d, got, want)
			}
		}
	}
}

// TestEncodingsForward_SinusoidalAdded verifies the sinusoidal branch
// adds row k of the fixed matrix to position k.
func TestEncodingsForward_SinusoidalAdded(t *testing.T) {
	config := DefaultConfig() // PosEmbedding=true, SIN_COS
	enc := NewEncodings(config)
	// Token table stays zero so the output is exactly the positional rows.

	ids := tensor.NewTensorFromData([]float32{0, 1, 2, 3}, []int{1, config.SeqLength})
	out, err := enc.Forward(ids)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for s := 0; s < config.SeqLength; s++ {
		for d := 0; d < config.EmbeddingDim; d++ {
			got := out.Get([]int{0, s, d})
			want := enc.SinPos.Get([]int{s, d})
			if got != want {
				t.Errorf("(0, %d, %d): got %f, want sinusoidal row value %f", s, d, got, want)
			}
		}
	}
}

// TestEncodingsForward_LearnedTableWhenFlagFalse verifies the learned
// table is still added when PosEmbedding is false: the flag gates only
// the sinusoidal branch.
func TestEncodingsForward_LearnedTableWhenFlagFalse(t *testing.T) {
	config := DefaultConfig()
	config.PosEmbedding = false // embedding type stays SIN_COS
	enc := NewEncodings(config)

	for s := 0; s <= config.SeqLength; s++ {
		for d := 0; d < config.EmbeddingDim; d++ {
			enc.PosEmb.Set([]int{s, d}, float32(s*100+d))
		}
	}

	ids := tensor.NewTensorFromData([]float32{0, 0, 0, 0}, []int{1, config.SeqLength})
	out, err := enc.Forward(ids)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for s := 0; s < config.SeqLength; s++ {
		for d := 0; d < config.EmbeddingDim; d++ {
			got := out.Get([]int{0, s, d})
			want := float32(s*100 + d)
			if got != want {
				t.Errorf("(0, %d, %d): got %f, want learned row value %f", s, d, got, want)
			}
		}
	}
}

// TestEncodingsForward_TokenRange tests ids at and beyond the reserved
// table rows.
func TestEncodingsForward_TokenRange(t *testing.T) {
	config := DefaultConfig()
	enc := NewEncodings(config)

	// VocabSize+1 is the last reserved row and must work.
	ids := tensor.NewTensorFromData(
		[]float32{float32(config.VocabSize + 1), 0, 0, 0}, []int{1, config.SeqLength})
	if _, err := enc.Forward(ids); err != nil {
		t.Errorf("Expected id %d to be valid, got error: %v", config.VocabSize+1, err)
	}

	// VocabSize+2 is outside the table.
	ids = tensor.NewTensorFromData(
		[]float32{float32(config.VocabSize + 2), 0, 0, 0}, []int{1, config.SeqLength})
	if _, err := enc.Forward(ids); err == nil {
		t.Errorf("Expected error for out-of-range id %d, got nil", config.VocabSize+2)
	}
}

// TestEncodingsForward_BadShape tests input shape validation.
func TestEncodingsForward_BadShape(t *testing.T) {
	config := DefaultConfig()
	enc := NewEncodings(config)

	if _, err := enc.Forward(tensor.NewTensor([]int{4})); err == nil {
		t.Error("Expected error for 1D input, got nil")
	}
	if _, err := enc.Forward(tensor.NewTensor([]int{1, config.SeqLength + 1})); err == nil {
		t.Error("Expected error for wrong sequence length, got nil")
	}
}
