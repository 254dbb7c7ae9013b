package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docqa/internal/chunker"
	"github.com/fyrsmithlabs/docqa/internal/embeddings"
	"github.com/fyrsmithlabs/docqa/internal/index"
)

func TestIndexTitles(t *testing.T) {
	manager, err := index.NewManager(index.ManagerConfig{
		Dense: index.DenseConfig{Path: t.TempDir(), VectorSize: 8},
	}, nil)
	require.NoError(t, err)

	assert.Empty(t, indexTitles(manager))

	provider := embeddings.NewHashProvider(8)
	for _, doc := range []struct{ id, title string }{
		{"annual-report", "Annual Report"},
		{"field-manual", "Field Manual"},
		{"untitled", ""},
	} {
		ch := chunker.Chunk{
			ID:          doc.id + "-0000",
			DocumentID:  doc.id,
			Text:        "content for " + doc.id,
			Page:        1,
			SourceTitle: doc.title,
		}
		vectors, err := provider.EmbedDocuments(context.Background(), []string{ch.Text})
		require.NoError(t, err)
		ch.Embedding = vectors[0]
		meta := index.DocumentMeta{DocID: doc.id, Title: doc.title, PageCount: 1}
		require.NoError(t, manager.AddDocument(context.Background(), meta, []chunker.Chunk{ch}))
	}

	// Sorted by document ID; empty titles dropped.
	assert.Equal(t, []string{"Annual Report", "Field Manual"}, indexTitles(manager))
}
