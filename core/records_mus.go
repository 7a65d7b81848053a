package core

import (
	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Binary codecs for the records kept in the embedded key-value store.
// Timestamps are stored as UTC microseconds; vectors as a length prefix
// followed by raw little-endian float32 values.

var (
	IDMUS           = idMUS{}
	VectorMUS       = vectorMUS{ord.NewSliceSer[float32](raw.Float32)}
	ConversationMUS = conversationMUS{}
	ChunkMUS        = chunkMUS{}
	CheckpointMUS   = checkpointMUS{}
)

var timeMUS = raw.TimeUnixMicroUTC

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

func (idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

// vectorMUS decodes empty vectors as nil and rejects lengths the input cannot hold.
type vectorMUS struct {
	mus.Serializer[[]float32]
}

func (s vectorMUS) Unmarshal(bs []byte) ([]float32, int, error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length > (len(bs)-n)/4 {
		return nil, n, mus.ErrTooSmallByteSlice
	}
	if length == 0 {
		return nil, n, nil
	}
	return s.Serializer.Unmarshal(bs)
}

type conversationMUS struct{}

// Marshal encodes every Conversation field except Chunks, which are stored separately.
func (conversationMUS) Marshal(v Conversation, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.SourceURL, bs[n:])
	n += ord.String.Marshal(v.OriginalTitle, bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (conversationMUS) Unmarshal(bs []byte) (v Conversation, n int, err error) {
	var n1 int
	if v.ID, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if v.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.SourceURL, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.OriginalTitle, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.CreatedAt, n1, err = timeMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	v.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (conversationMUS) Size(v Conversation) (size int) {
	size = IDMUS.Size(v.ID)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.SourceURL)
	size += ord.String.Size(v.OriginalTitle)
	size += timeMUS.Size(v.CreatedAt)
	return size + timeMUS.Size(v.UpdatedAt)
}

type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += IDMUS.Marshal(v.ConversationID, bs[n:])
	n += varint.Int.Marshal(v.OrderIndex, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(v.AuthorName, bs[n:])
	n += varint.Int.Marshal(int(v.AuthorType), bs[n:])
	n += timeMUS.Marshal(v.Timestamp, bs[n:])
	n += VectorMUS.Marshal(v.Embedding, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var (
		n1         int
		authorType int
	)
	if v.ID, n, err = IDMUS.Unmarshal(bs); err != nil {
		return
	}
	if v.ConversationID, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.OrderIndex, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.AuthorName, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if authorType, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	v.AuthorType = AuthorType(authorType)
	if v.Timestamp, n1, err = timeMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	v.Embedding, n1, err = VectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.ID)
	size += IDMUS.Size(v.ConversationID)
	size += varint.Int.Size(v.OrderIndex)
	size += ord.String.Size(v.Text)
	size += ord.String.Size(v.AuthorName)
	size += varint.Int.Size(int(v.AuthorType))
	size += timeMUS.Size(v.Timestamp)
	return size + VectorMUS.Size(v.Embedding)
}

type checkpointMUS struct{}

func (checkpointMUS) Marshal(v Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += IDMUS.Marshal(v.LastID, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (checkpointMUS) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	var n1 int
	if v.Name, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.LastID, n1, err = IDMUS.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	v.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (checkpointMUS) Size(v Checkpoint) int {
	return ord.String.Size(v.Name) + IDMUS.Size(v.LastID) + timeMUS.Size(v.UpdatedAt)
}
