package document

import "fmt"

// Author collects the documents that reference one name.
// It does not own the documents; the corpus does.
type Author struct {
	Name      string
	documents []*Document
}

// DocumentCount is the number of documents referencing the author
func (a *Author) DocumentCount() int {
	return len(a.documents)
}

// Documents returns the author's documents in corpus order
func (a *Author) Documents() []*Document {
	out := make([]*Document, len(a.documents))
	copy(out, a.documents)
	return out
}

func (a *Author) String() string {
	return fmt.Sprintf("Author(%s, documents=%d)", a.Name, len(a.documents))
}

// Registry indexes authors by name, keeping first-seen order
type Registry struct {
	byName map[string]*Author
	order  []*Author
}

// BuildRegistry scans docs in order. Each document is attributed to its
// primary author and, for feed documents, to every co-author.
func BuildRegistry(docs []*Document) *Registry {
	r := &Registry{byName: make(map[string]*Author)}
	for _, doc := range docs {
		for _, name := range doc.Authors() {
			author, ok := r.byName[name]
			if !ok {
				author = &Author{Name: name}
				r.byName[name] = author
				r.order = append(r.order, author)
			}
			author.documents = append(author.documents, doc)
		}
	}
	return r
}

// Get looks an author up by exact name
func (r *Registry) Get(name string) (*Author, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.byName[name]
	return a, ok
}

// All returns authors in first-seen order
func (r *Registry) All() []*Author {
	if r == nil {
		return nil
	}
	out := make([]*Author, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
