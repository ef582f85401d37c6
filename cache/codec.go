package cache

import (
	"github.com/cockroachdb/errors"

	"orchestrator/compressor"
	"orchestrator/crypter"
	"orchestrator/parser"
)

// Codec serializes a job.State for storage in an out-of-process cache
// backend (Redis, SQL). It reuses the same marshal -> compress -> encrypt
// pipeline as tcp.TcpMessage.PackWriteBody/UnpackReadBody, just applied to
// cache payloads instead of wire frames: the reasons to pick a parser,
// shrink with a compressor and encrypt at rest are the same whether the
// bytes travel over a socket or sit in an external KV.
type Codec struct {
	Parser     parser.Parser
	Compressor compressor.Compresser
	Crypto     crypter.Crypter
}

// NewCodec builds the default codec: JSON body, zstd compression, AES
// encryption at rest. Crypto may be nil, in which case entries are stored
// compressed but unencrypted (suitable for the in-memory backend, or a
// trusted deployment where the backing store is already encrypted at
// rest).
func NewCodec(crypto crypter.Crypter) *Codec {
	return &Codec{
		Parser:     &parser.JSONParser{},
		Compressor: &compressor.ZstdCompressor{},
		Crypto:     crypto,
	}
}

// compressedFlag / rawFlag are a one-byte prefix recording whether the
// compressor actually shrank the payload, mirroring tcp.TcpMessage falling
// back to CompressorType=None when ErrNotShrunk is returned.
const (
	rawFlag        byte = 0
	compressedFlag byte = 1
)

// Encode turns a value into bytes suitable for a backend write.
func (c *Codec) Encode(v any) ([]byte, error) {
	b, err := c.Parser.Marshal(v)
	if err != nil {
		return nil, errors.Errorf("cache codec marshal: %w", err)
	}

	flag := compressedFlag
	comp, err := c.Compressor.Compress(b)
	if err != nil {
		if !errors.Is(err, compressor.ErrNotShrunk) {
			return nil, errors.Errorf("cache codec compress: %w", err)
		}
		flag = rawFlag
		comp = b
	}
	comp = append([]byte{flag}, comp...)

	if c.Crypto == nil {
		return comp, nil
	}

	enc, err := c.Crypto.EnCrypt(comp)
	if err != nil {
		return nil, errors.Errorf("cache codec encrypt: %w", err)
	}
	return enc, nil
}

// Decode is the inverse of Encode.
func (c *Codec) Decode(b []byte, out any) error {
	comp := b
	var err error
	if c.Crypto != nil {
		comp, err = c.Crypto.DeCrypt(b)
		if err != nil {
			return errors.Errorf("cache codec decrypt: %w", err)
		}
	}

	if len(comp) < 1 {
		return errors.New("cache codec: empty payload")
	}
	flag, body := comp[0], comp[1:]

	var raw []byte
	if flag == compressedFlag {
		raw, err = c.Compressor.Decompress(body)
		if err != nil {
			return errors.Errorf("cache codec decompress: %w", err)
		}
	} else {
		raw = body
	}

	if err := c.Parser.Unmarshal(raw, out); err != nil {
		return errors.Errorf("cache codec unmarshal: %w", err)
	}
	return nil
}
