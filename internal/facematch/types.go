// Package facematch resolves a scanned face embedding to a student of a section.
// It is pure: storage, extraction and HTTP live in other packages.
package facematch

// StudentFaceProfile is a student together with their enrolled face embeddings.
type StudentFaceProfile struct {
	StudentID   string
	Name        string
	SectionID   string
	Embeddings  [][]float32
	HasTwin     bool
	TwinGroupID string
}

// Enrolled reports whether the student has at least one stored embedding.
// Unenrolled students are never returned by a match.
func (p *StudentFaceProfile) Enrolled() bool {
	for _, emb := range p.Embeddings {
		if len(emb) > 0 {
			return true
		}
	}
	return false
}

// InTwinGroup reports whether the student is linked to a twin group.
func (p *StudentFaceProfile) InTwinGroup() bool {
	return p.HasTwin && p.TwinGroupID != ""
}

// OutcomeKind is the terminal state of a single scan.
type OutcomeKind int

const (
	NoMatch OutcomeKind = iota
	AmbiguousTwins
	AlreadyMarked
	Matched
)

func (k OutcomeKind) String() string {
	switch k {
	case AmbiguousTwins:
		return "ambiguous_twins"
	case AlreadyMarked:
		return "already_marked"
	case Matched:
		return "matched"
	default:
		return "no_match"
	}
}

// TwinCandidate is one member of an ambiguous twin group.
type TwinCandidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Outcome is the result of resolving a scan.
type Outcome struct {
	Kind        OutcomeKind
	StudentID   string
	StudentName string
	// Score is the best similarity seen for the query, -1 when nothing was comparable.
	Score float64
	// TwinCandidates is set for AmbiguousTwins, sorted by id.
	TwinCandidates []TwinCandidate
	// AutoResolved is true when a twin match was settled by elimination.
	AutoResolved bool
}

// PresentSet holds the ids of students already marked present for the day.
type PresentSet map[string]struct{}

// NewPresentSet builds a PresentSet from ids.
func NewPresentSet(ids ...string) PresentSet {
	set := make(PresentSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether the student is already present. Safe on a nil set.
func (s PresentSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
