package search

import "fmt"

// NewBackend selects the search backend named by driver ("elasticsearch" or
// "qdrant"), per VECTOR_DATABASE_DRIVER (SPEC_FULL §4.6).
func NewBackend(driver string, esAddresses []string, esAPIKey, esIndex string, qdrantHost string, qdrantPort int, qdrantCollection string) (Backend, error) {
	switch driver {
	case "", "elasticsearch":
		return New(esAddresses, esAPIKey, esIndex)
	case "qdrant":
		return NewQdrantClient(qdrantHost, qdrantPort, qdrantCollection)
	default:
		return nil, fmt.Errorf("search: unknown VECTOR_DATABASE_DRIVER %q", driver)
	}
}
