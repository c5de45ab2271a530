package models

// FileRecord is one physical file belonging to a Study. Content is not
// loaded with the record; it is read chunk by chunk from the store.
type FileRecord struct {
	ID       int64
	StudyID  int64
	FileName string
	FileType string
	Size     int64
	// Purged is set once the content has been dropped after completion.
	Purged bool
}

// NewFile is the input for staging a file.
type NewFile struct {
	Name    string
	Type    string
	Content []byte
}

// ChunkRecord marks one acknowledged chunk of a file.
type ChunkRecord struct {
	FileID int64
	Index  int
}

// TotalChunks is ceil(size/chunkSize). A zero-byte file has no chunks.
func TotalChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// ChunkRange returns the byte window [offset, offset+length) of chunk index.
func ChunkRange(size, chunkSize int64, index int) (offset, length int64) {
	offset = int64(index) * chunkSize
	if offset >= size {
		return size, 0
	}
	length = chunkSize
	if offset+length > size {
		length = size - offset
	}
	return offset, length
}
