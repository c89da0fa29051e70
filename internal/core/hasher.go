package core

import (
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "GoldLedger:genesis:v1"

// StateHasher chains envelope hashes.
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: GenesisHash()}
}

// ResumeStateHasher continues a chain from a persisted tip.
func ResumeStateHasher(tip [32]byte) *StateHasher {
	return &StateHasher{prevHash: tip}
}

// GenesisHash is the prev_hash of sequence 1.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ComputeHash calculates hash[N] = SHA-256(prev_hash || sequence || payload)
// and advances the tip.
func (h *StateHasher) ComputeHash(sequence int64, payload []byte) [32]byte {
	hash := ChainHash(h.prevHash, sequence, payload)
	h.prevHash = hash
	return hash
}

// ChainHash is the pure form of ComputeHash, used to verify a stored chain.
func ChainHash(prev [32]byte, sequence int64, payload []byte) [32]byte {
	hasher := sha256.New()

	// prev_hash (32 bytes)
	hasher.Write(prev[:])

	// sequence (8 bytes LE)
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(payload)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}
