package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalEngine_Sparse_Deterministic(t *testing.T) {
	l := NewLexicalEngine()
	a := l.Sparse("the connection keeps dropping during retry")
	b := l.Sparse("the connection keeps dropping during retry")
	assert.Equal(t, a, b)
}

func TestLexicalEngine_Sparse_Empty(t *testing.T) {
	l := NewLexicalEngine()
	assert.Empty(t, l.Sparse(""))
	assert.Empty(t, l.Sparse("   "))
}

func TestLexicalEngine_Sparse_RepeatedTermSaturates(t *testing.T) {
	l := NewLexicalEngine()
	once := l.Sparse("retry")
	thrice := l.Sparse("retry retry retry")

	id := hashToken("retry")
	require.Contains(t, once, id)
	require.Contains(t, thrice, id)
	assert.Greater(t, thrice[id], once[id])
	// BM25 tf saturation: weight grows sublinearly with repetition.
	assert.Less(t, thrice[id], once[id]*3)
}

type fakeDFProvider struct {
	df, total int
}

func (f fakeDFProvider) DocumentFrequency(termHash uint32) (int, int) {
	return f.df, f.total
}

func TestLexicalEngine_Sparse_IDFWeighting(t *testing.T) {
	l := NewLexicalEngine()
	rare := l.Sparse("panic")
	l.SetDocumentFrequencyProvider(fakeDFProvider{df: 1, total: 1000})
	rareWeighted := l.Sparse("panic")

	id := hashToken("panic")
	assert.Greater(t, rareWeighted[id], float32(0))
	assert.NotEqual(t, rare[id], rareWeighted[id])
}

func TestIDF_MonotonicInRarity(t *testing.T) {
	rare := idf(1, 1000)
	common := idf(500, 1000)
	assert.Greater(t, rare, common)
	assert.GreaterOrEqual(t, common, 0.0)
}
