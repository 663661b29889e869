package gateway

import (
	"fmt"
	"testing"
)

func TestReplayBuffer_RangeInclusive(t *testing.T) {
	rb := NewReplayBuffer(10)
	for i := int64(1); i <= 5; i++ {
		rb.Push(i, []byte(fmt.Sprintf("msg-%d", i)))
	}

	got := rb.Range(2, 4)
	if len(got) != 3 {
		t.Fatalf("range returned %d entries, want 3", len(got))
	}
	for i, e := range got {
		want := int64(i + 2)
		if e.Seq != want {
			t.Errorf("entry %d seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_OverwritesOldest(t *testing.T) {
	rb := NewReplayBuffer(3)
	for i := int64(1); i <= 7; i++ {
		rb.Push(i, []byte(fmt.Sprintf("msg-%d", i)))
	}

	if rb.Len() != 3 {
		t.Fatalf("len = %d, want 3", rb.Len())
	}
	got := rb.Range(1, 7)
	if len(got) != 3 {
		t.Fatalf("range returned %d entries, want 3", len(got))
	}
	// Only the newest three survive.
	for i, e := range got {
		want := int64(i + 5)
		if e.Seq != want {
			t.Errorf("entry %d seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(4)
	payload := []byte("original")
	rb.Push(1, payload)
	payload[0] = 'X'

	got := rb.Range(1, 1)
	if len(got) != 1 || string(got[0].Data) != "original" {
		t.Fatalf("buffer did not copy payload: %q", got[0].Data)
	}
}
