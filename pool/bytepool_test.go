package pool_test

import (
	"testing"

	"github.com/momentics/wsrelay/pool"
)

func TestBytePoolCapacity(t *testing.T) {
	bp := pool.NewBytePool(64, 1024)
	b := bp.GetBuffer(16)
	if len(*b) != 0 || cap(*b) < 16 {
		t.Fatalf("len=%d cap=%d", len(*b), cap(*b))
	}
	bp.PutBuffer(b)

	big := bp.GetBuffer(512)
	if cap(*big) < 512 {
		t.Errorf("cap=%d, want >= 512", cap(*big))
	}
	*big = append(*big, 1, 2, 3)
	bp.PutBuffer(big)

	bp.PutBuffer(nil)
	again := bp.GetBuffer(8)
	if len(*again) != 0 {
		t.Error("pooled buffer not reset")
	}
}

func TestSyncPoolCreates(t *testing.T) {
	calls := 0
	sp := pool.NewSyncPool(func() int { calls++; return 42 })
	if v := sp.Get(); v != 42 || calls != 1 {
		t.Fatalf("v=%d calls=%d", v, calls)
	}
}
