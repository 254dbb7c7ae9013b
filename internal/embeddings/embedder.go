package embeddings

import "context"

// Embedder generates vector embeddings for document passages and queries.
// Providers may apply different prefixes for the two cases (BGE models
// expect "passage: " and "query: "), so callers must use the matching
// method for the text's role.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple passage texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
