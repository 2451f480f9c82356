package messagelog

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rmacdonaldsmith/tagmesh/pkg/bus"
)

func TestInMemoryMessageLog_AppendAssignsPerTagOffsets(t *testing.T) {
	log := NewInMemoryMessageLog(0)
	defer log.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		record, err := log.Append(ctx, bus.NewMessage("a", i, "p"))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if record.Offset() != int64(i) {
			t.Errorf("Expected offset %d, got %d", i, record.Offset())
		}
	}

	record, err := log.Append(ctx, bus.NewMessage("b", "x", "p"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if record.Offset() != 0 {
		t.Errorf("Expected independent offset 0 for tag b, got %d", record.Offset())
	}
}

func TestInMemoryMessageLog_AppendEmptyTag(t *testing.T) {
	log := NewInMemoryMessageLog(0)
	defer log.Close()

	if _, err := log.Append(context.Background(), bus.Message{}); err != ErrEmptyTag {
		t.Fatalf("Expected ErrEmptyTag, got %v", err)
	}
}

func TestInMemoryMessageLog_Trimming(t *testing.T) {
	log := NewInMemoryMessageLog(2)
	defer log.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := log.Append(ctx, bus.NewMessage("a", i, "p")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := log.Read(ctx, "a", 0, 10)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 retained records, got %d", len(records))
	}
	if records[0].Offset() != 3 || records[1].Offset() != 4 {
		t.Errorf("Expected offsets 3 and 4, got %d and %d", records[0].Offset(), records[1].Offset())
	}

	end, err := log.EndOffset(ctx, "a")
	if err != nil {
		t.Fatalf("EndOffset failed: %v", err)
	}
	if end != 5 {
		t.Errorf("Expected end offset 5, got %d", end)
	}

	stats, err := log.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.TotalMessages != 5 || stats.Retained != 2 || stats.TagCount != 1 {
		t.Errorf("Unexpected statistics: %+v", stats)
	}
}

func TestInMemoryMessageLog_ReadWindow(t *testing.T) {
	log := NewInMemoryMessageLog(0)
	defer log.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		log.Append(ctx, bus.NewMessage("a", i, "p"))
	}

	records, err := log.Read(ctx, "a", 4, 3)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, record := range records {
		if record.Offset() != int64(4+i) {
			t.Errorf("Expected offset %d, got %d", 4+i, record.Offset())
		}
	}

	records, err = log.Read(ctx, "unknown", 0, 3)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records for unknown tag, got %d", len(records))
	}

	records, err = log.Read(ctx, "a", 0, 0)
	if err != nil || len(records) != 0 {
		t.Errorf("Expected empty result for zero max count, got %d records, err %v", len(records), err)
	}
}

func TestInMemoryMessageLog_ReadValidation(t *testing.T) {
	log := NewInMemoryMessageLog(0)
	defer log.Close()
	ctx := context.Background()

	if _, err := log.Read(ctx, "a", -1, 1); err != ErrNegativeOffset {
		t.Errorf("Expected ErrNegativeOffset, got %v", err)
	}
	if _, err := log.Read(ctx, "a", 0, -1); err != ErrNegativeMaxCount {
		t.Errorf("Expected ErrNegativeMaxCount, got %v", err)
	}
}

func TestInMemoryMessageLog_CancelledContext(t *testing.T) {
	log := NewInMemoryMessageLog(0)
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := log.Append(ctx, bus.NewMessage("a", 1, "p")); err != context.Canceled {
		t.Errorf("Expected context.Canceled from Append, got %v", err)
	}
	if _, err := log.Read(ctx, "a", 0, 1); err != context.Canceled {
		t.Errorf("Expected context.Canceled from Read, got %v", err)
	}
	if _, err := log.EndOffset(ctx, "a"); err != context.Canceled {
		t.Errorf("Expected context.Canceled from EndOffset, got %v", err)
	}
}

func TestInMemoryMessageLog_Close(t *testing.T) {
	log := NewInMemoryMessageLog(0)
	ctx := context.Background()
	log.Append(ctx, bus.NewMessage("a", 1, "p"))

	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if _, err := log.Append(ctx, bus.NewMessage("a", 1, "p")); err != ErrLogClosed {
		t.Errorf("Expected ErrLogClosed, got %v", err)
	}
}

func TestInMemoryMessageLog_ConcurrentAppend(t *testing.T) {
	log := NewInMemoryMessageLog(1000)
	defer log.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				log.Append(ctx, bus.NewMessage(fmt.Sprintf("tag-%d", w%2), i, "p"))
			}
		}(w)
	}
	wg.Wait()

	for _, tag := range []string{"tag-0", "tag-1"} {
		end, _ := log.EndOffset(ctx, tag)
		if end != 200 {
			t.Errorf("Expected 200 appends on %s, got %d", tag, end)
		}
	}
}
