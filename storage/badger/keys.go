package badger

import (
	"bytes"
	"encoding/binary"

	"github.com/poiesic/threadbase/core"
)

// Key prefixes for different data types.
// Numeric key parts are written BigEndian so lexicographic order matches numeric order.
const (
	conversationPrefix        = "conv:"
	conversationCreatedPrefix = "convc:"
	chunkPrefix               = "chunk:"
	chunkIDPrefix             = "chunkid:"
	checkpointPrefix          = "chkpt:"
	conversationIDSeq         = "convseq"
	chunkIDSeq                = "chunkseq"
)

// makeKey appends the BigEndian encoding of each part to prefix.
func makeKey(prefix string, parts ...uint64) []byte {
	buf := make([]byte, len(prefix)+8*len(parts))
	offset := copy(buf, prefix)
	for _, p := range parts {
		binary.BigEndian.PutUint64(buf[offset:], p)
		offset += 8
	}
	return buf
}

// makeConversationKey generates a key for a conversation record by ID.
func makeConversationKey(id core.ID) []byte {
	return makeKey(conversationPrefix, uint64(id))
}

// makeConversationCreatedKey generates a composite key for the creation-time index.
// Format: prefix:createdMicros:id
func makeConversationCreatedKey(conv *core.Conversation) []byte {
	return makeKey(conversationCreatedPrefix, uint64(conv.CreatedAt.UnixMicro()), uint64(conv.ID))
}

// makeChunkKey generates a key for a chunk record.
// Format: prefix:conversationID:orderIndex
func makeChunkKey(conversationID core.ID, orderIndex int) []byte {
	return makeKey(chunkPrefix, uint64(conversationID), uint64(orderIndex))
}

// makeConversationChunksPrefix generates the prefix shared by all chunks of a conversation.
func makeConversationChunksPrefix(conversationID core.ID) []byte {
	return makeKey(chunkPrefix, uint64(conversationID))
}

// makeChunkIDKey generates a key for the chunk locator index. Its value is the chunk key.
func makeChunkIDKey(id core.ID) []byte {
	return makeKey(chunkIDPrefix, uint64(id))
}

// makeCheckpointKey generates a key for a named checkpoint.
func makeCheckpointKey(name string) []byte {
	return []byte(checkpointPrefix + name)
}

// seekLast returns a key that sorts after every key starting with prefix.
func seekLast(prefix string) []byte {
	return append([]byte(prefix), bytes.Repeat([]byte{0xFF}, 32)...)
}
