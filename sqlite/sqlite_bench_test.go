package sqlite_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/sqlite"
	"github.com/stretchr/testify/require"
)

// BenchmarkWALMode compares write performance between WAL and rollback journal modes.
// This simulates an extraction workload: one task receiving many small record batches.
func BenchmarkWALMode(b *testing.B) {
	b.Run("rollback_journal", func(b *testing.B) {
		benchmarkRecordInserts(b, false)
	})

	b.Run("wal_mode", func(b *testing.B) {
		benchmarkRecordInserts(b, true)
	})
}

func benchmarkRecordInserts(b *testing.B, useWAL bool) {
	b.Helper()

	// Create a temporary file for the database
	tmpDir := b.TempDir()
	dbPath := filepath.Join(tmpDir, "bench.db")

	db := sqlite.NewDB(dbPath)
	require.NoError(b, db.Open())

	// Enable WAL mode if requested
	if useWAL {
		ctx := context.Background()
		_, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
		require.NoError(b, err)
	}

	defer func() {
		db.Close()
		// Clean up WAL files if they exist
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}()

	ctx := context.Background()
	tree := createPattern(b, db)
	svc := sqlite.NewTaskService(db)
	task := &autoprobe.ExtractionTask{PatternID: tree.ID, Target: "https://example.com/products"}
	require.NoError(b, svc.CreateTask(ctx, task))
	_, err := svc.StartTask(ctx, task.ID)
	require.NoError(b, err)

	// Reset timer to exclude setup time
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		records := []*autoprobe.ExtractionRecord{{
			NodeID:       "root/items/item/title",
			InstancePath: []int{i},
			Value:        fmt.Sprintf("Product %d", i),
		}}
		if err := svc.SubmitRecords(ctx, task.ID, records); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBulkInserts tests submitting a page worth of records in one batch.
func BenchmarkBulkInserts(b *testing.B) {
	const recordsPerPage = 100

	b.Run("rollback_journal", func(b *testing.B) {
		benchmarkBulkInserts(b, false, recordsPerPage)
	})

	b.Run("wal_mode", func(b *testing.B) {
		benchmarkBulkInserts(b, true, recordsPerPage)
	})
}

func benchmarkBulkInserts(b *testing.B, useWAL bool, recordsPerPage int) {
	b.Helper()

	for i := 0; i < b.N; i++ {
		b.StopTimer()

		tmpDir := b.TempDir()
		dbPath := filepath.Join(tmpDir, fmt.Sprintf("bench%d.db", i))

		db := sqlite.NewDB(dbPath)
		require.NoError(b, db.Open())

		if useWAL {
			ctx := context.Background()
			_, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
			require.NoError(b, err)
		}

		ctx := context.Background()
		tree := createPattern(b, db)
		svc := sqlite.NewTaskService(db)
		task := &autoprobe.ExtractionTask{PatternID: tree.ID, Target: "https://example.com/products"}
		require.NoError(b, svc.CreateTask(ctx, task))
		_, err := svc.StartTask(ctx, task.ID)
		require.NoError(b, err)

		records := make([]*autoprobe.ExtractionRecord, 0, 2*recordsPerPage)
		for j := 0; j < recordsPerPage; j++ {
			records = append(records,
				&autoprobe.ExtractionRecord{NodeID: "root/items/item/title", InstancePath: []int{j}, Value: fmt.Sprintf("Product %d", j)},
				&autoprobe.ExtractionRecord{NodeID: "root/items/item/price", InstancePath: []int{j}, Value: float64(j)},
			)
		}

		b.StartTimer()

		if err := svc.SubmitRecords(ctx, task.ID, records); err != nil {
			b.Fatal(err)
		}

		b.StopTimer()
		db.Close()
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}
}
