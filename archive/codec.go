package archive

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes Entry payload.
type Codec interface {
	Name() string
	Marshal(e *Entry) ([]byte, error)
	Unmarshal(data []byte, e *Entry) error
}

var (
	// Msgpack is default codec.
	Msgpack Codec = msgpackCodec{}
	CBOR    Codec = mustCBOR()
)

// CodecByName returns codec by its name. Empty name means Msgpack.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", Msgpack.Name():
		return Msgpack, nil
	case CBOR.Name():
		return CBOR, nil
	}
	return nil, fmt.Errorf("unknown archive codec %q", name)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(e *Entry) ([]byte, error) { return msgpack.Marshal(e) }

func (msgpackCodec) Unmarshal(data []byte, e *Entry) error { return msgpack.Unmarshal(data, e) }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func mustCBOR() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return "cbor" }

func (c cborCodec) Marshal(e *Entry) ([]byte, error) { return c.enc.Marshal(e) }

func (c cborCodec) Unmarshal(data []byte, e *Entry) error { return c.dec.Unmarshal(data, e) }
