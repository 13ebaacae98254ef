package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room for algorithm migration.
const (
	DomainOperation = "meshflow/operation/v1"
	DomainObject    = "meshflow/object/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// OperationID is the identity of a logged operation at a given position.
// Moving, retagging or editing a record changes it.
func OperationID(index int, tag string, params Object) (string, error) {
	if params == nil {
		params = Object{}
	}
	obj := Object{
		"index":  Int(index),
		"tag":    String(tag),
		"params": params,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("operation id: %w", err)
	}
	return hashWithDomain(DomainOperation, canonical), nil
}

// ContentHash identifies the serialized content of one registry object.
func ContentHash(kind string, content Object) (string, error) {
	obj := Object{
		"kind":    String(kind),
		"content": content,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hashWithDomain(DomainObject, canonical), nil
}

// MustOperationID is like OperationID but panics on error.
// Use only in tests or with known-good params.
func MustOperationID(index int, tag string, params Object) string {
	id, err := OperationID(index, tag, params)
	if err != nil {
		panic(err)
	}
	return id
}
