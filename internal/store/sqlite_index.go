package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/felixgeelhaar/intelart/internal/rag"
)

// sqliteIndex keeps chunks next to the rest of the store. Search is a
// brute-force cosine scan, fine for a local knowledge base.
type sqliteIndex struct {
	s *SQLiteStore
}

// Index returns the chunk table as a rag.Index. Closing it leaves the
// store open.
func (s *SQLiteStore) Index() rag.Index {
	return &sqliteIndex{s: s}
}

func (x *sqliteIndex) Add(ctx context.Context, chunks []rag.Chunk) error {
	tx, err := x.s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO chunks (id, source_id, position, content, vector) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, vector = excluded.vector`
	for _, c := range chunks {
		vecBuf := new(bytes.Buffer)
		if err := binary.Write(vecBuf, binary.LittleEndian, c.Embedding); err != nil {
			return fmt.Errorf("failed to encode vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, c.ID, c.SourceID, c.Position, c.Content, vecBuf.Bytes()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (x *sqliteIndex) Search(ctx context.Context, queryVector []float32, limit int) ([]rag.Match, error) {
	rows, err := x.s.db.QueryContext(ctx, `SELECT id, source_id, content, vector FROM chunks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []rag.Match
	for rows.Next() {
		var m rag.Match
		var vecBlob []byte
		if err := rows.Scan(&m.ID, &m.SourceID, &m.Content, &vecBlob); err != nil {
			return nil, err
		}

		vector := make([]float32, len(vecBlob)/4)
		if err := binary.Read(bytes.NewReader(vecBlob), binary.LittleEndian, &vector); err != nil {
			continue
		}
		m.Score = cosineSimilarity(queryVector, vector)
		scored = append(scored, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (x *sqliteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := x.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (x *sqliteIndex) Reset(ctx context.Context) error {
	_, err := x.s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

func (x *sqliteIndex) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}
	var dot, magA, magB float32
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return dot / (float32(math.Sqrt(float64(magA))) * float32(math.Sqrt(float64(magB))))
}
