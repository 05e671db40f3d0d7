package patentqa

// DocumentSet is an insertion-ordered collection of documents with unique
// sources. The first document seen for a source is kept; later ones are dropped
// without merging metadata.
type DocumentSet struct {
	docs []RetrievedDocument
	seen map[string]struct{}
}

func NewDocumentSet() *DocumentSet {
	return &DocumentSet{seen: map[string]struct{}{}}
}

// Add appends doc when its source is unseen and reports whether it was kept.
func (s *DocumentSet) Add(doc RetrievedDocument) bool {
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, ok := s.seen[doc.Source]; ok {
		return false
	}
	s.seen[doc.Source] = struct{}{}
	s.docs = append(s.docs, doc)
	return true
}

func (s *DocumentSet) AddAll(docs []RetrievedDocument) int {
	added := 0
	for _, d := range docs {
		if s.Add(d) {
			added++
		}
	}
	return added
}

func (s *DocumentSet) Contains(source string) bool {
	if s == nil {
		return false
	}
	_, ok := s.seen[source]
	return ok
}

func (s *DocumentSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.docs)
}

func (s *DocumentSet) Empty() bool { return s.Len() == 0 }

// Documents returns a copy of the members in order.
func (s *DocumentSet) Documents() []RetrievedDocument {
	if s == nil {
		return nil
	}
	out := make([]RetrievedDocument, len(s.docs))
	copy(out, s.docs)
	return out
}

func (s *DocumentSet) First() (RetrievedDocument, bool) {
	if s.Len() == 0 {
		return RetrievedDocument{}, false
	}
	return s.docs[0], true
}

func (s *DocumentSet) Sources() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Source)
	}
	return out
}

// MergeKeywordResults folds per-keyword result lists into one DocumentSet in
// keyword order. Callers that search keywords concurrently must collect every
// list first and merge here so the output matches a sequential run.
func MergeKeywordResults(perKeyword [][]RetrievedDocument) *DocumentSet {
	set := NewDocumentSet()
	for _, batch := range perKeyword {
		set.AddAll(batch)
	}
	return set
}
