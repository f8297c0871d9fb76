// Package models holds the registry data model shared by the action log, the
// offchain state store and the settlement machine. Every field value has a
// canonical byte encoding so logs, merkle roots and proofs operate on uniform
// bytes while services read typed values.
package models

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"zkns/internal/namekey"
	pkgerrors "zkns/pkg/errors"
)

// PublicKey is opaque caller key material. Signing and key management live
// outside this service.
type PublicKey string

// FieldID identifies one declared offchain field. It indexes the per-field
// roots inside a commitment.
type FieldID uint8

const (
	// FieldRegistry is the map field: packed name -> Record.
	FieldRegistry FieldID = iota
	// FieldPremium is the scalar registration fee.
	FieldPremium
	// FieldPaused is the scalar pause flag.
	FieldPaused
	// FieldAdmin is the scalar admin key.
	FieldAdmin

	// NumFields is the number of declared fields.
	NumFields = 4
)

func (f FieldID) String() string {
	switch f {
	case FieldRegistry:
		return "registry"
	case FieldPremium:
		return "premium"
	case FieldPaused:
		return "paused"
	case FieldAdmin:
		return "admin"
	}
	return "unknown"
}

// Valid reports whether f names a declared field.
func (f FieldID) Valid() bool { return f < NumFields }

// Record is the value stored under a name. The zero value is the absent
// sentinel; a valid record always carries a non-empty owner, so the sentinel
// can never collide with real data.
type Record struct {
	Owner   PublicKey
	Aux     namekey.Key
	Payload namekey.Key
}

// IsEmpty reports whether r is the absent sentinel.
func (r Record) IsEmpty() bool { return r == Record{} }

// EncodeRecord produces the canonical byte form: owner length-prefixed,
// followed by the two packed fields.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, 0, 2+len(r.Owner)+64)
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(r.Owner)))
	buf = append(buf, n[:]...)
	buf = append(buf, r.Owner...)
	buf = append(buf, r.Aux[:]...)
	buf = append(buf, r.Payload[:]...)
	return buf
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(b []byte) (Record, error) {
	var r Record
	if len(b) < 2 {
		return r, pkgerrors.New(pkgerrors.CodeEncoding, "record too short")
	}
	ownerLen := int(binary.BigEndian.Uint16(b[:2]))
	if len(b) != 2+ownerLen+64 {
		return r, pkgerrors.Newf(pkgerrors.CodeEncoding, "record length %d does not match owner length %d", len(b), ownerLen)
	}
	r.Owner = PublicKey(b[2 : 2+ownerLen])
	copy(r.Aux[:], b[2+ownerLen:2+ownerLen+32])
	copy(r.Payload[:], b[2+ownerLen+32:])
	return r, nil
}

// EncodePremium packs the premium scalar.
func EncodePremium(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// DecodePremium is the inverse of EncodePremium.
func DecodePremium(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, pkgerrors.Newf(pkgerrors.CodeEncoding, "premium value has %d bytes, want 8", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// EncodePaused packs the pause flag.
func EncodePaused(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodePaused is the inverse of EncodePaused.
func DecodePaused(b []byte) (bool, error) {
	if len(b) != 1 || b[0] > 1 {
		return false, pkgerrors.New(pkgerrors.CodeEncoding, "malformed paused value")
	}
	return b[0] == 1, nil
}

// EncodeAdmin packs the admin scalar.
func EncodeAdmin(pk PublicKey) []byte { return []byte(pk) }

// DecodeAdmin is the inverse of EncodeAdmin.
func DecodeAdmin(b []byte) PublicKey { return PublicKey(b) }

// Action is one queued state-mutation intent. From carries the optimistic
// precondition: nil means "slot must be absent at replay", non-nil means
// "slot must currently hold exactly these bytes". Actions are immutable once
// appended; Seq is assigned by the log and is strictly increasing.
type Action struct {
	ID        uuid.UUID
	Field     FieldID
	Key       *namekey.Key // nil for scalar fields
	From      []byte       // nil = expects absent
	To        []byte
	Seq       uint64
	CreatedAt time.Time
}

// ValueEqual compares canonical field values, treating nil as absent.
func ValueEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return bytes.Equal(a, b)
}

// Clone returns a deep copy so log implementations can hand out actions
// without sharing backing arrays.
func (a Action) Clone() Action {
	out := a
	if a.Key != nil {
		k := *a.Key
		out.Key = &k
	}
	if a.From != nil {
		out.From = append([]byte(nil), a.From...)
	}
	out.To = append([]byte(nil), a.To...)
	return out
}
