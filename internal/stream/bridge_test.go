package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mimicvoice/mimic/internal/audio"
)

func TestBridgeDeliversChunksInOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5, 100} {
		b := New(4)
		go func() {
			defer b.Finish(nil)
			for i := 0; i < n; i++ {
				chunk := audio.Chunk{
					Samples:    []float32{float32(i)},
					SampleRate: 24000,
					Final:      i == n-1,
				}
				if err := b.Send(context.Background(), chunk); err != nil {
					t.Errorf("send chunk %d: %v", i, err)
					return
				}
			}
		}()

		var got []audio.Chunk
		for chunk := range b.Chunks() {
			got = append(got, chunk)
		}

		if len(got) != n {
			t.Fatalf("n=%d: expected %d chunks, got %d", n, n, len(got))
		}
		for i, chunk := range got {
			if chunk.Samples[0] != float32(i) {
				t.Fatalf("n=%d: chunk %d out of order: %v", n, i, chunk.Samples[0])
			}
		}
		if n > 0 && !got[n-1].Final {
			t.Fatalf("n=%d: last chunk not marked final", n)
		}
		if !b.Join(time.Second) {
			t.Fatalf("n=%d: producer did not finish", n)
		}
		if b.Err() != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, b.Err())
		}
	}
}

func TestBridgeConsumerNeverReadsPastSentinel(t *testing.T) {
	b := New(2)
	go func() {
		_ = b.Send(context.Background(), audio.Chunk{Samples: []float32{1}, SampleRate: 24000})
		b.Finish(nil)
	}()

	count := 0
	for range b.Chunks() {
		count++
	}
	if count != 1 {
		t.Fatalf("expected 1 chunk, got %d", count)
	}
	// Reading a closed channel yields the zero value immediately.
	if _, ok := <-b.Chunks(); ok {
		t.Fatal("read a chunk after the stream ended")
	}
}

func TestBridgeProducerErrorStillTerminates(t *testing.T) {
	wantErr := errors.New("model fell over")
	b := New(1)
	go func() {
		_ = b.Send(context.Background(), audio.Chunk{Samples: []float32{1}, SampleRate: 24000})
		b.Finish(wantErr)
	}()

	var got []audio.Chunk
	for chunk := range b.Chunks() {
		got = append(got, chunk)
	}
	if len(got) != 1 {
		t.Fatalf("expected chunk before failure, got %d", len(got))
	}
	if !errors.Is(b.Err(), wantErr) {
		t.Fatalf("expected recorded error, got %v", b.Err())
	}
	if !b.Join(time.Second) {
		t.Fatal("producer did not finish after error")
	}
}

func TestBridgeFinishIsIdempotent(t *testing.T) {
	b := New(0)
	b.Finish(errors.New("first"))
	b.Finish(errors.New("second")) // must not panic or overwrite
	if b.Err() == nil || b.Err().Error() != "first" {
		t.Fatalf("expected first error to win, got %v", b.Err())
	}
}

func TestBridgeSendRespectsCancellation(t *testing.T) {
	b := New(0) // unbuffered, nobody consuming
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Send(ctx, audio.Chunk{Samples: []float32{1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestBridgeJoinTimesOut(t *testing.T) {
	b := New(0)
	if b.Join(10 * time.Millisecond) {
		t.Fatal("join should time out while producer is alive")
	}
	b.Finish(nil)
	if !b.Join(time.Second) {
		t.Fatal("join should succeed after finish")
	}
}
