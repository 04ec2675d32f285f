// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sinara implements the generic checksummed configuration
// container stored in Sinara board EEPROMs. The container is a fixed
// 128-byte block holding a 64-byte board-specific payload protected by a
// CRC-32 trailer. It occupies only the writable lower half of the
// 256-byte device: the upper half carries the factory-programmed
// identity block, which a container write must never touch.
package sinara // import "github.com/b787abel/booster/internal/sinara"

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	// Size is the size of a serialized container.
	Size = 128

	// BoardDataSize is the size of the board-specific payload region.
	BoardDataSize = 64

	version = 1

	dataOff = 8
	crcOff  = Size - 4
)

var magic = [4]byte{'S', 'N', 'R', 'A'}

// BoardID identifies the kind of board a container belongs to.
type BoardID uint16

const (
	Mainboard BoardID = iota + 1
	RfChannel
)

// Config is a deserialized configuration container.
type Config struct {
	Board BoardID
	Data  [BoardDataSize]byte
}

// Default returns an empty container for the given board kind.
func Default(id BoardID) *Config {
	return &Config{Board: id}
}

// Parse validates and deserializes a raw container image. It returns an
// error if the image is truncated, carries the wrong magic or version,
// or fails the checksum.
func Parse(raw []byte) (*Config, error) {
	if len(raw) != Size {
		return nil, fmt.Errorf("sinara: invalid container size %d", len(raw))
	}
	if !bytes.Equal(raw[:4], magic[:]) {
		return nil, fmt.Errorf("sinara: invalid container magic %q", raw[:4])
	}
	if v := binary.LittleEndian.Uint16(raw[4:6]); v != version {
		return nil, fmt.Errorf("sinara: unknown container version %d", v)
	}
	sum := binary.LittleEndian.Uint32(raw[crcOff:])
	if got := crc32.ChecksumIEEE(raw[:crcOff]); got != sum {
		return nil, fmt.Errorf("sinara: checksum mismatch (got=0x%08x, want=0x%08x)", got, sum)
	}

	cfg := &Config{Board: BoardID(binary.LittleEndian.Uint16(raw[6:8]))}
	copy(cfg.Data[:], raw[dataOff:dataOff+BoardDataSize])
	return cfg, nil
}

// Bytes serializes the container, recomputing the checksum trailer.
func (cfg *Config) Bytes() []byte {
	raw := make([]byte, Size)
	copy(raw[:4], magic[:])
	binary.LittleEndian.PutUint16(raw[4:6], version)
	binary.LittleEndian.PutUint16(raw[6:8], uint16(cfg.Board))
	copy(raw[dataOff:dataOff+BoardDataSize], cfg.Data[:])
	binary.LittleEndian.PutUint32(raw[crcOff:], crc32.ChecksumIEEE(raw[:crcOff]))
	return raw
}
