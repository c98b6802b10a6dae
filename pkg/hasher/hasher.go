// Package hasher computes the cryptographic identity of uploaded files.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const hashBufferSize = 128 * 1024

var ErrRead = errors.New("hasher: cannot read file")

var hashBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSize)
		return &buf
	},
}

// Hashes holds lowercase hex digests of the same content.
type Hashes struct {
	MD5    string
	SHA1   string
	SHA256 string
}

// ComputeHashes reads the file once and returns all three digests.
// Any open or read failure fails the whole call; no partial digests are returned.
func ComputeHashes(path string) (Hashes, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hashes{}, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}
	defer file.Close()

	return ComputeHashesReader(file)
}

// ComputeHashesReader digests everything r yields.
func ComputeHashesReader(r io.Reader) (Hashes, error) {
	md5h := md5.New()
	sha1h := sha1.New()
	sha256h := sha256.New()
	w := io.MultiWriter(md5h, sha1h, sha256h)

	bufferPtr := hashBufferPool.Get().(*[]byte)
	defer hashBufferPool.Put(bufferPtr)

	if _, err := io.CopyBuffer(w, r, *bufferPtr); err != nil {
		return Hashes{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	return Hashes{
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
	}, nil
}
