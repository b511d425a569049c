// Package model defines the records, pages and run bookkeeping shared by the
// pipeline stages.
package model

// NoiseLabel is the cluster label assigned to records with no confident
// group membership.
const NoiseLabel = -1

// CandidateRecord is one page-derived, unverified business mention.
// SourceURL is always set; every other field is best-effort.
type CandidateRecord struct {
	Name          string   `json:"name"`
	Address       *string  `json:"address,omitempty"`
	Phone         *string  `json:"phone,omitempty"`
	Email         *string  `json:"email,omitempty"`
	Website       string   `json:"website"`
	SourceURL     string   `json:"source_url"`
	IndustryScore float64  `json:"industry_score"`
	Sources       []string `json:"sources,omitempty"`
}

// MergedRecord is the output of merging one cluster. It has the same shape as
// a CandidateRecord; Sources lists every contributing source URL.
type MergedRecord = CandidateRecord

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// HasAddress reports whether the address is set and non-empty.
func (r *CandidateRecord) HasAddress() bool { return Deref(r.Address) != "" }

// HasPhone reports whether the phone is set and non-empty.
func (r *CandidateRecord) HasPhone() bool { return Deref(r.Phone) != "" }

// HasEmail reports whether the email is set and non-empty.
func (r *CandidateRecord) HasEmail() bool { return Deref(r.Email) != "" }

// Clone returns a deep copy of the record.
func (r CandidateRecord) Clone() CandidateRecord {
	out := r
	out.Address = clonePtr(r.Address)
	out.Phone = clonePtr(r.Phone)
	out.Email = clonePtr(r.Email)
	if r.Sources != nil {
		out.Sources = append([]string(nil), r.Sources...)
	}
	return out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Query is a ranked search phrase produced by the query planner.
type Query struct {
	Text  string  `json:"text"`
	Rank  int     `json:"rank"`
	Score float64 `json:"score"`
}
