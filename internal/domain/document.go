package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind separates jobs from candidate profiles in the store.
type Kind string

const (
	KindJob       Kind = "job"
	KindCandidate Kind = "candidate"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindJob || k == KindCandidate
}

// Vector is an embedding. A nil Vector means "absent".
type Vector []float32

// Chunk is a contiguous span of a document's text and its embedding.
type Chunk struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
	Vector   Vector `json:"vector,omitempty"`
}

// HasVector reports whether the chunk was embedded successfully.
func (c Chunk) HasVector() bool {
	return len(c.Vector) > 0
}

// Document is a job or a candidate profile together with its derived vectors.
// Documents are replaced as a whole on re-processing.
type Document struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"kind"`
	Attributes    Attributes `json:"attributes"`
	RawText       string     `json:"raw_text"`
	Chunks        []Chunk    `json:"chunks,omitempty"`
	AverageVector Vector     `json:"average_vector,omitempty"`
	IndexedAt     time.Time  `json:"indexed_at,omitempty"`
}

// HasVector reports whether the document can take part in semantic ranking.
func (d *Document) HasVector() bool {
	return d != nil && len(d.AverageVector) > 0
}

// DisplayName returns the best human label for logs and prompts.
func (d *Document) DisplayName() string {
	if d == nil {
		return ""
	}
	if d.Attributes.Name != "" {
		return d.Attributes.Name
	}
	if d.Attributes.Title != "" {
		return d.Attributes.Title
	}
	return d.ID
}

// Clone returns a deep copy of the document's slices so that callers can
// derive a new record without touching the original.
func (d Document) Clone() Document {
	out := d
	out.Attributes = d.Attributes.Clone()
	if d.Chunks != nil {
		out.Chunks = make([]Chunk, len(d.Chunks))
		for i, c := range d.Chunks {
			c.Vector = cloneVector(c.Vector)
			out.Chunks[i] = c
		}
	}
	out.AverageVector = cloneVector(d.AverageVector)
	return out
}

func cloneVector(v Vector) Vector {
	if v == nil {
		return nil
	}
	return append(Vector(nil), v...)
}

// DocumentID builds the stable identifier of a document coming from the given
// source, e.g. "linkedin_4296641686".
func DocumentID(source, externalID string) (string, error) {
	source = strings.TrimSpace(source)
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return "", fmt.Errorf("%w: external id is required", ErrInvalidInput)
	}
	if source == "" {
		source = "unknown"
	}
	return fmt.Sprintf("%s_%s", strings.ToLower(source), externalID), nil
}

// MatchResult is a ranked candidate for a job. It is computed per query and
// never persisted.
type MatchResult struct {
	CandidateID   string   `json:"candidate_id"`
	SemanticScore float64  `json:"semantic_score"`
	OverlapScore  float64  `json:"overlap_score"`
	CombinedScore float64  `json:"combined_score"`
	Overlap       []string `json:"overlap"`

	Candidate *Document `json:"-"`
}

// AssessmentReport is the structured insight produced for one shortlisted candidate.
type AssessmentReport struct {
	CandidateID        string   `json:"candidate_id"`
	Summary            string   `json:"summary"`
	MatchScore         int      `json:"match_score"`
	Justification      string   `json:"justification"`
	InterviewQuestions []string `json:"interview_questions"`
}
