package embedder

import "testing"

func TestDimensionFor_KnownModel(t *testing.T) {
	if got := DimensionFor("nomic-embed-text", 123); got != 768 {
		t.Errorf("expected 768 for nomic-embed-text, got %d", got)
	}
	if got := DimensionFor("mxbai-embed-large", 123); got != 1024 {
		t.Errorf("expected 1024 for mxbai-embed-large, got %d", got)
	}
}

func TestDimensionFor_UnknownModelFallback(t *testing.T) {
	if got := DimensionFor("some-custom-model", 512); got != 512 {
		t.Errorf("expected fallback 512 for unknown model, got %d", got)
	}
}

func TestDimensionFor_DetectsMisconfiguredKnownModel(t *testing.T) {
	// A known model must report its real dimension even when the caller
	// passes a different configured value as the fallback.
	configured := 1536
	if got := DimensionFor("nomic-embed-text", configured); got == configured {
		t.Errorf("known model dimension should override configured %d", configured)
	}
}

func TestNewOllamaEmbedder_DimensionFromModel(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Model: "all-minilm"})

	if e.Dimension() != 384 {
		t.Errorf("expected dimension 384 for all-minilm, got %d", e.Dimension())
	}
}
