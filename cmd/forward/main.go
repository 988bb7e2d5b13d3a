package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"attnpool/pkg/model"
	"attnpool/pkg/tensor"
)

func main() {
	// Define command line flags
	embDim := flag.Int("emb-dim", 8, "Embedding dimension")
	seqLen := flag.Int("seq-len", 4, "Fixed sequence length")
	vocabSize := flag.Int("vocab-size", 10, "Vocabulary size")
	numHeads := flag.Int("heads", 2, "Number of attention heads")
	numLayers := flag.Int("layers", 1, "Number of stacked attention layers")
	headSize := flag.Int("head-size", 4, "Output width of the final head projection")
	agg := flag.String("agg", "TOKEN", "Aggregation method: TOKEN or SUM")
	encoding := flag.String("encoding", "SIN_COS", "Positional embedding type: SIN_COS or RANDOM")
	posEmbedding := flag.Bool("pos", true, "Enable the sinusoidal positional branch")
	seed := flag.Int64("seed", 42, "Seed for parameter initialization")
	idsArg := flag.String("ids", "3,1,4,1", "Comma-separated token ids, one sequence")

	flag.Parse()

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("        Pooled Attention Encoder Forward")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	config := model.Config{
		EmbeddingDim:  *embDim,
		SeqLength:     *seqLen,
		VocabSize:     *vocabSize,
		PosEmbedding:  *posEmbedding,
		EmbeddingType: model.EmbeddingType(*encoding),
		NumHeads:      *numHeads,
		HeadSize:      *headSize,
		AggMethod:     model.AggMethod(*agg),
		NumLayers:     *numLayers,
	}

	fmt.Printf("Model Configuration:\n")
	fmt.Printf("  Embedding Dim: %d\n", config.EmbeddingDim)
	fmt.Printf("  Seq Length: %d\n", config.SeqLength)
	fmt.Printf("  Vocab Size: %d\n", config.VocabSize)
	fmt.Printf("  Num Heads: %d\n", config.NumHeads)
	fmt.Printf("  Num Layers: %d\n", config.NumLayers)
	fmt.Printf("  Head Size: %d\n", config.HeadSize)
	fmt.Printf("  Aggregation: %s\n", config.AggMethod)
	fmt.Printf("  Encoding: %s (pos=%v)\n", config.EmbeddingType, config.PosEmbedding)
	fmt.Println()

	ids, err := parseIDs(*idsArg, config.SeqLength)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	encoder, err := model.NewEncoderSeeded(config, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	output, scores, err := encoder.Forward(ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: forward pass failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Pooled output %v:\n  %s\n\n", output.Shape, output)
	fmt.Printf("Attention scores %v (layer, batch, head, query, key)\n", scores.Shape)
	for layer := 0; layer < config.NumLayers; layer++ {
		for head := 0; head < config.NumHeads; head++ {
			fmt.Printf("  layer %d head %d:\n", layer, head)
			for q := 0; q < config.SeqLength; q++ {
				row := make([]string, config.SeqLength)
				for k := 0; k < config.SeqLength; k++ {
					row[k] = fmt.Sprintf("%.4f", scores.Get([]int{layer, 0, head, q, k}))
				}
				fmt.Printf("    [%s]\n", strings.Join(row, ", "))
			}
		}
	}
}

// parseIDs turns a comma-separated id list into a (1, seqLen) tensor.
func parseIDs(arg string, seqLen int) (*tensor.Tensor, error) {
	parts := strings.Split(arg, ",")
	if len(parts) != seqLen {
		return nil, fmt.Errorf("expected %d token ids, got %d", seqLen, len(parts))
	}

	data := make([]float32, seqLen)
	for i, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", part, err)
		}
		data[i] = float32(id)
	}
	return tensor.FromSlice(data, []int{1, seqLen})
}
