package database

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/school-attendance/internal/facematch"
)

// FaceHit is a stored embedding returned by a face index search.
type FaceHit struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"name"`
	SectionID   string  `json:"section_id"`
	Similarity  float64 `json:"similarity"`
}

// FaceIndex wraps an HNSW graph over every enrolled student embedding.
// It backs duplicate-enrollment detection; attendance matching stays exact.
type FaceIndex struct {
	graph    *hnsw.Graph[int64]
	idToFace map[int64]*StudentEmbedding // Maps HNSW node ID to embedding metadata
	dim      int
	mu       sync.RWMutex
}

// NewFaceIndex creates a new empty face index.
func NewFaceIndex() *FaceIndex {
	return &FaceIndex{
		idToFace: make(map[int64]*StudentEmbedding),
	}
}

func newFaceGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with embeddings.
// Embeddings whose dimension differs from the first one are skipped.
func (f *FaceIndex) Build(embeddings []StudentEmbedding) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.graph = nil
	f.dim = 0
	f.idToFace = make(map[int64]*StudentEmbedding, len(embeddings))

	for i := range embeddings {
		f.addLocked(&embeddings[i])
	}
}

// Add inserts a single embedding.
func (f *FaceIndex) Add(emb StudentEmbedding) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLocked(&emb)
}

func (f *FaceIndex) addLocked(emb *StudentEmbedding) {
	if len(emb.Embedding) == 0 {
		return
	}
	if f.dim == 0 {
		f.dim = len(emb.Embedding)
	}
	if len(emb.Embedding) != f.dim {
		return
	}
	if f.graph == nil {
		f.graph = newFaceGraph()
	}
	if _, exists := f.idToFace[emb.ID]; exists {
		return
	}

	f.graph.Add(hnsw.MakeNode(emb.ID, emb.Embedding))
	f.idToFace[emb.ID] = emb
}

// Count returns the number of indexed embeddings.
func (f *FaceIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.idToFace)
}

// Search finds the k nearest embeddings to query, most similar first.
// Similarities are recomputed exactly from the stored vectors.
func (f *FaceIndex) Search(query []float32, k int) ([]*StudentEmbedding, []float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.graph == nil {
		return nil, nil, nil
	}
	if len(query) != f.dim {
		return nil, nil, errors.New("query dimension does not match index")
	}

	neighbors := f.graph.Search(query, k)
	embs := make([]*StudentEmbedding, 0, len(neighbors))
	sims := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		emb, ok := f.idToFace[n.Key]
		if !ok {
			continue
		}
		embs = append(embs, emb)
		sims = append(sims, facematch.Similarity(query, n.Value))
	}
	return embs, sims, nil
}

// DuplicateQuery describes a duplicate-enrollment check.
type DuplicateQuery struct {
	Embedding     []float32
	SchoolID      string
	StudentID     string // the student being enrolled, excluded from results
	TwinGroupID   string // siblings in this twin group are expected look-alikes
	MinSimilarity float64
	Limit         int
}

// FindDuplicates returns other students of the same school whose faces are at
// least MinSimilarity to the query, one hit per student, most similar first.
func (f *FaceIndex) FindDuplicates(q DuplicateQuery) ([]FaceHit, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	embs, sims, err := f.Search(q.Embedding, q.Limit*HNSWSearchMultiplier)
	if err != nil {
		return nil, err
	}

	best := make(map[string]FaceHit)
	for i, emb := range embs {
		if sims[i] < q.MinSimilarity || emb.StudentID == q.StudentID {
			continue
		}
		if q.SchoolID != "" && emb.SchoolID != q.SchoolID {
			continue
		}
		if q.TwinGroupID != "" && emb.TwinGroupID == q.TwinGroupID {
			continue
		}
		if prev, ok := best[emb.StudentID]; ok && prev.Similarity >= sims[i] {
			continue
		}
		best[emb.StudentID] = FaceHit{
			StudentID:   emb.StudentID,
			StudentName: emb.StudentName,
			SectionID:   emb.SectionID,
			Similarity:  sims[i],
		}
	}

	hits := make([]FaceHit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].StudentID < hits[j].StudentID
	})
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}
