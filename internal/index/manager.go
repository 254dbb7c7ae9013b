package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/chunker"
)

var managerTracer = otel.Tracer("docqa.index.manager")

var (
	// ErrIndexUnavailable indicates the corpus is empty. Retrieval
	// against an unavailable index returns empty results, not a failure.
	ErrIndexUnavailable = errors.New("index unavailable: no documents ingested")

	// ErrIndexCorrupt indicates persisted index state that cannot be
	// decoded. Fatal at startup; the operator must repair or remove the
	// index directory.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrDocumentNotFound indicates an unknown document ID.
	ErrDocumentNotFound = errors.New("document not found")
)

// DocumentMeta describes one ingested document.
type DocumentMeta struct {
	DocID     string   `json:"doc_id"`
	Title     string   `json:"title"`
	Filename  string   `json:"filename"`
	PageCount int      `json:"page_count"`
	ChunkIDs  []string `json:"chunk_ids"`
}

// ManagerConfig holds configuration for the index manager.
type ManagerConfig struct {
	Dense DenseConfig

	// SidecarPath is the JSON file holding chunk text, embeddings and
	// document metadata. Default: "<dense path>/chunks.json". The
	// sidecar is authoritative: the sparse index is rebuilt from it on
	// load, and the dense index is rebuilt from it when the vector
	// store disagrees on chunk count.
	SidecarPath string
}

// ApplyDefaults sets default values for unset fields.
func (c *ManagerConfig) ApplyDefaults() {
	c.Dense.ApplyDefaults()
	if c.SidecarPath == "" {
		c.SidecarPath = filepath.Join(c.Dense.Path, "chunks.json")
	}
}

// state is the immutable view swapped atomically on every mutation.
// Readers holding a Snapshot keep the state they started with.
type state struct {
	chunks map[string]chunker.Chunk
	docs   map[string]DocumentMeta
	sparse *SparseIndex
}

func buildState(chunks map[string]chunker.Chunk, docs map[string]DocumentMeta) *state {
	items := make([]indexable, 0, len(chunks))
	for id, ch := range chunks {
		items = append(items, indexable{id: id, text: ch.Text})
	}
	return &state{
		chunks: chunks,
		docs:   docs,
		sparse: BuildSparseIndex(items),
	}
}

// Manager owns the dense and sparse indices plus chunk metadata and
// keeps them in lockstep: every chunk is either in both indices or in
// neither. Writers are serialized; readers take an immutable Snapshot
// and never block.
type Manager struct {
	config ManagerConfig
	dense  *DenseIndex
	logger *zap.Logger

	mu    sync.Mutex // serializes writers
	state atomic.Pointer[state]
}

// sidecar is the on-disk JSON layout.
type sidecar struct {
	Documents []DocumentMeta  `json:"documents"`
	Chunks    []chunker.Chunk `json:"chunks"`
}

// NewManager opens the persistent indices and restores prior state.
// A missing sidecar means an empty corpus; one that fails to decode is
// ErrIndexCorrupt.
func NewManager(config ManagerConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	sidecarPath, err := expandPath(config.SidecarPath)
	if err != nil {
		return nil, fmt.Errorf("expanding sidecar path: %w", err)
	}
	config.SidecarPath = sidecarPath

	dense, err := NewDenseIndex(config.Dense, logger)
	if err != nil {
		return nil, fmt.Errorf("opening dense index: %w", err)
	}

	m := &Manager{
		config: config,
		dense:  dense,
		logger: logger,
	}

	st, err := m.load()
	if err != nil {
		return nil, err
	}
	m.state.Store(st)

	if err := m.reconcile(context.Background(), st); err != nil {
		return nil, err
	}

	logger.Info("index manager ready",
		zap.Int("documents", len(st.docs)),
		zap.Int("chunks", len(st.chunks)),
	)
	return m, nil
}

// load reads the sidecar and builds the initial state.
func (m *Manager) load() (*state, error) {
	data, err := os.ReadFile(m.config.SidecarPath)
	if errors.Is(err, os.ErrNotExist) {
		return buildState(map[string]chunker.Chunk{}, map[string]DocumentMeta{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sidecar: %w", err)
	}

	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrIndexCorrupt, m.config.SidecarPath, err)
	}

	chunks := make(map[string]chunker.Chunk, len(sc.Chunks))
	for _, ch := range sc.Chunks {
		if ch.ID == "" || len(ch.Embedding) == 0 {
			return nil, fmt.Errorf("%w: chunk %q missing id or embedding", ErrIndexCorrupt, ch.ID)
		}
		chunks[ch.ID] = ch
	}
	docs := make(map[string]DocumentMeta, len(sc.Documents))
	for _, d := range sc.Documents {
		docs[d.DocID] = d
	}
	return buildState(chunks, docs), nil
}

// reconcile rebuilds the dense index from the sidecar when the two
// disagree on chunk count (interrupted shutdown, partial write).
func (m *Manager) reconcile(ctx context.Context, st *state) error {
	if m.dense.Count() == len(st.chunks) {
		return nil
	}

	m.logger.Warn("dense index out of sync with sidecar, rebuilding",
		zap.Int("dense_count", m.dense.Count()),
		zap.Int("sidecar_count", len(st.chunks)),
	)

	if err := m.dense.Reset(ctx); err != nil {
		return fmt.Errorf("resetting dense index: %w", err)
	}
	chunks := make([]chunker.Chunk, 0, len(st.chunks))
	for _, ch := range st.chunks {
		chunks = append(chunks, ch)
	}
	if err := m.dense.Add(ctx, chunks); err != nil {
		return fmt.Errorf("rebuilding dense index: %w", err)
	}
	return nil
}

// save writes the sidecar atomically (temp file + rename).
func (m *Manager) save(st *state) error {
	sc := sidecar{
		Documents: make([]DocumentMeta, 0, len(st.docs)),
		Chunks:    make([]chunker.Chunk, 0, len(st.chunks)),
	}
	for _, d := range st.docs {
		sc.Documents = append(sc.Documents, d)
	}
	sort.Slice(sc.Documents, func(i, j int) bool { return sc.Documents[i].DocID < sc.Documents[j].DocID })
	for _, ch := range st.chunks {
		sc.Chunks = append(sc.Chunks, ch)
	}
	sort.Slice(sc.Chunks, func(i, j int) bool { return sc.Chunks[i].ID < sc.Chunks[j].ID })

	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}

	tmp := m.config.SidecarPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing sidecar: %w", err)
	}
	if err := os.Rename(tmp, m.config.SidecarPath); err != nil {
		return fmt.Errorf("renaming sidecar: %w", err)
	}
	return nil
}

// AddDocument indexes a document's chunks in both indices. Re-adding an
// existing document ID replaces it. Every chunk must carry its
// embedding and belong to meta.DocID.
func (m *Manager) AddDocument(ctx context.Context, meta DocumentMeta, chunks []chunker.Chunk) error {
	ctx, span := managerTracer.Start(ctx, "Manager.AddDocument")
	defer span.End()

	span.SetAttributes(
		attribute.String("doc_id", meta.DocID),
		attribute.Int("chunk_count", len(chunks)),
	)

	if meta.DocID == "" {
		return fmt.Errorf("document ID cannot be empty")
	}
	for _, ch := range chunks {
		if ch.DocumentID != meta.DocID {
			return fmt.Errorf("chunk %s belongs to document %s, not %s", ch.ID, ch.DocumentID, meta.DocID)
		}
		if len(ch.Embedding) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingEmbedding, ch.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state.Load()

	if err := m.dense.Add(ctx, chunks); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// Replace semantics on re-upload. Adding first overwrites any chunk
	// IDs shared with the old version, so only the stale remainder needs
	// removing and the document stays searchable throughout the swap.
	if old, ok := cur.docs[meta.DocID]; ok {
		kept := make(map[string]bool, len(chunks))
		for _, ch := range chunks {
			kept[ch.ID] = true
		}
		var stale []string
		for _, id := range old.ChunkIDs {
			if !kept[id] {
				stale = append(stale, id)
			}
		}
		if err := m.dense.Remove(ctx, stale); err != nil {
			span.RecordError(err)
			return fmt.Errorf("removing replaced chunks: %w", err)
		}
	}

	newChunks := make(map[string]chunker.Chunk, len(cur.chunks)+len(chunks))
	for id, ch := range cur.chunks {
		if ch.DocumentID != meta.DocID {
			newChunks[id] = ch
		}
	}
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		newChunks[ch.ID] = ch
		ids[i] = ch.ID
	}
	meta.ChunkIDs = ids

	newDocs := make(map[string]DocumentMeta, len(cur.docs)+1)
	for id, d := range cur.docs {
		newDocs[id] = d
	}
	newDocs[meta.DocID] = meta

	st := buildState(newChunks, newDocs)
	m.state.Store(st)

	if err := m.save(st); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "success")
	m.logger.Info("document indexed",
		zap.String("doc_id", meta.DocID),
		zap.String("title", meta.Title),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// DeleteDocument removes a document and all its chunks from both
// indices.
func (m *Manager) DeleteDocument(ctx context.Context, docID string) error {
	ctx, span := managerTracer.Start(ctx, "Manager.DeleteDocument")
	defer span.End()

	span.SetAttributes(attribute.String("doc_id", docID))

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state.Load()
	meta, ok := cur.docs[docID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}

	if err := m.dense.Remove(ctx, meta.ChunkIDs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	newChunks := make(map[string]chunker.Chunk, len(cur.chunks))
	for id, ch := range cur.chunks {
		if ch.DocumentID != docID {
			newChunks[id] = ch
		}
	}
	newDocs := make(map[string]DocumentMeta, len(cur.docs))
	for id, d := range cur.docs {
		if id != docID {
			newDocs[id] = d
		}
	}

	st := buildState(newChunks, newDocs)
	m.state.Store(st)

	if err := m.save(st); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "success")
	m.logger.Info("document deleted",
		zap.String("doc_id", docID),
		zap.Int("chunks_removed", len(meta.ChunkIDs)),
	)
	return nil
}

// Snapshot returns an immutable read view of the current index state.
func (m *Manager) Snapshot() *Snapshot {
	return &Snapshot{state: m.state.Load(), dense: m.dense}
}

// Snapshot is a consistent read view. Chunk metadata and the sparse
// index are frozen at snapshot time; dense searches run against the
// live vector store, which during a concurrent write can briefly hold
// both the old and new chunks of a replaced document. SearchDense drops
// hits missing from the frozen chunk table, so a search sees at most
// the snapshot's universe, never a chunk it cannot resolve.
type Snapshot struct {
	state *state
	dense *DenseIndex
}

// Empty reports whether the corpus has no chunks.
func (s *Snapshot) Empty() bool {
	return len(s.state.chunks) == 0
}

// ChunkCount returns the number of chunks in the snapshot.
func (s *Snapshot) ChunkCount() int {
	return len(s.state.chunks)
}

// Chunk returns a chunk by ID.
func (s *Snapshot) Chunk(id string) (chunker.Chunk, bool) {
	ch, ok := s.state.chunks[id]
	return ch, ok
}

// Document returns a document's metadata by ID.
func (s *Snapshot) Document(docID string) (DocumentMeta, bool) {
	d, ok := s.state.docs[docID]
	return d, ok
}

// Documents lists all documents, ordered by ID.
func (s *Snapshot) Documents() []DocumentMeta {
	docs := make([]DocumentMeta, 0, len(s.state.docs))
	for _, d := range s.state.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return docs
}

// SearchDense returns the k nearest chunks to the query vector. Hits
// for chunks not present in this snapshot are filtered out.
func (s *Snapshot) SearchDense(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if s.Empty() {
		return []Hit{}, nil
	}
	hits, err := s.dense.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	filtered := hits[:0]
	for _, h := range hits {
		if _, ok := s.state.chunks[h.ID]; ok {
			filtered = append(filtered, h)
		}
	}
	return filtered, nil
}

// SearchSparse returns the top k BM25 matches for the query.
func (s *Snapshot) SearchSparse(query string, k int) []Hit {
	return s.state.sparse.Search(query, k)
}
