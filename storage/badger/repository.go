package badger

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/threadbase/storage"
)

// Repository implements storage.Repository on top of BadgerDB.
type Repository struct {
	backend     *Backend
	convSeq     *badger.Sequence
	chunkSeq    *badger.Sequence
	ownsBackend bool
	logger      *slog.Logger
}

var _ storage.Repository = (*Repository)(nil)

type repoOptions struct {
	inMemory bool
	logger   *slog.Logger
}

// Option configures a Repository.
type Option func(*repoOptions)

// WithLogger sets the logger. A nil logger uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *repoOptions) {
		o.logger = logger
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() Option {
	return func(o *repoOptions) {
		o.inMemory = true
	}
}

// NewRepository opens (or creates) a BadgerDB store at path.
func NewRepository(path string, opts ...Option) (storage.Repository, error) {
	o := &repoOptions{}
	for _, opt := range opts {
		opt(o)
	}

	backend, err := OpenBackend(path, o.inMemory, o.logger)
	if err != nil {
		return nil, storage.Wrap("open badger", err)
	}

	repo, err := newRepository(backend)
	if err != nil {
		backend.Close()
		return nil, storage.Wrap("open badger", err)
	}
	repo.ownsBackend = true
	return repo, nil
}

// newRepository creates a Repository over an open backend. The caller keeps ownership
// of the backend.
func newRepository(backend *Backend) (*Repository, error) {
	convSeq, err := backend.GetSequence(conversationIDSeq)
	if err != nil {
		return nil, err
	}
	chunkSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		convSeq.Release()
		return nil, err
	}

	return &Repository{
		backend:  backend,
		convSeq:  convSeq,
		chunkSeq: chunkSeq,
		logger:   backend.logger.With("component", "storage", "backend", "badger"),
	}, nil
}

// Close releases the ID sequences and, when the repository opened it, the database.
func (r *Repository) Close() error {
	if r.backend.IsClosed() {
		return nil
	}
	err := r.convSeq.Release()
	if seqErr := r.chunkSeq.Release(); err == nil {
		err = seqErr
	}
	if r.ownsBackend {
		if closeErr := r.backend.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
