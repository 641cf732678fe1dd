package config

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	settings Settings
	// FailPersist makes every Update return ErrPersistFailed without
	// applying the mutation, for exercising persist-failure paths.
	FailPersist error
}

func NewMemStore(serverDir string) *MemStore {
	return &MemStore{settings: defaultSettings(serverDir)}
}

func (s *MemStore) Get() Settings {
	return s.settings
}

func (s *MemStore) Update(fn func(*Settings)) error {
	if s.FailPersist != nil {
		return s.FailPersist
	}
	next := s.settings
	fn(&next)
	s.settings = next
	return nil
}
