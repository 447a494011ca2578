package badger

// Key prefixes for stored data types
const (
	chunkPrefix = "chunk"
)

// makeChunkKey generates a key for a raw chunk.
// Format: chunk:<moduleID>:<chunkID>
func makeChunkKey(moduleID, chunkID string) []byte {
	return []byte(chunkPrefix + ":" + moduleID + ":" + chunkID)
}

// makeModulePrefix generates the key prefix covering every chunk of a
// module.
func makeModulePrefix(moduleID string) []byte {
	return []byte(chunkPrefix + ":" + moduleID + ":")
}
