/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: sample.go
Description: Sample fingerprinting. Computes size, MD5, SHA-1 and SHA-256 of a file in a
single pass, either standalone or as a tap on a scan that is already reading the file.
*/

package sample

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// Fingerprint identifies a scanned sample
type Fingerprint struct {
	Path     string `json:"path"`
	Basename string `json:"basename"`
	Size     int64  `json:"size"`
	MD5      string `json:"md5"`
	SHA1     string `json:"sha1"`
	SHA256   string `json:"sha256"`
}

// Hasher accumulates digests of everything written to it
type Hasher struct {
	md5    hash.Hash
	sha1   hash.Hash
	sha256 hash.Hash
	writer io.Writer
	size   int64
}

// NewHasher creates an empty hasher
func NewHasher() *Hasher {
	h := &Hasher{
		md5:    md5.New(),
		sha1:   sha1.New(),
		sha256: sha256.New(),
	}
	h.writer = io.MultiWriter(h.md5, h.sha1, h.sha256)
	return h
}

// Write feeds p into every digest
func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.writer.Write(p)
	h.size += int64(n)
	return n, err
}

// Fingerprint returns the digests of everything written so far, labelled with path
func (h *Hasher) Fingerprint(path string) Fingerprint {
	return Fingerprint{
		Path:     path,
		Basename: filepath.Base(path),
		Size:     h.size,
		MD5:      hex.EncodeToString(h.md5.Sum(nil)),
		SHA1:     hex.EncodeToString(h.sha1.Sum(nil)),
		SHA256:   hex.EncodeToString(h.sha256.Sum(nil)),
	}
}

// FingerprintFile reads path once and returns its fingerprint
func FingerprintFile(path string) (Fingerprint, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	h := NewHasher()
	if _, err := io.Copy(h, file); err != nil {
		return Fingerprint{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return h.Fingerprint(path), nil
}
