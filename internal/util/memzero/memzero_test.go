package memzero_test

import (
	"testing"

	"bunkerlink/internal/util/memzero"
)

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	memzero.Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not wiped: %d", i, v)
		}
	}
	memzero.Zero(nil)
}

func TestKey(t *testing.T) {
	var k [32]byte
	for i := range k {
		k[i] = byte(i + 1)
	}
	memzero.Key(&k)
	if k != [32]byte{} {
		t.Fatalf("key not wiped: %x", k)
	}
	memzero.Key(nil)
}
