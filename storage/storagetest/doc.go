// Package storagetest holds the conformance suite every storage backend must pass.
//
// Backends call Run from their own tests with a factory that returns an empty
// repository:
//
//	func TestConformance(t *testing.T) {
//	    storagetest.Run(t, 8, func(t *testing.T) storage.Repository {
//	        repo, err := badger.NewMemoryRepository()
//	        require.NoError(t, err)
//	        t.Cleanup(func() { repo.Close() })
//	        return repo
//	    })
//	}
package storagetest
