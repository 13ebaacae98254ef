package testutil

// FixedIDGenerator returns the same project id every time, so encoded
// documents are byte-identical across runs and golden files stay stable.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator for id. An empty id yields
// "test-project".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-project"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
