package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// VectorIndex is the narrow ANN surface Store needs over Qdrant, collapsed
// to the operations Chapter embeddings actually require (§4.J write path,
// §4.B read path), adapted from the teacher's persistence/databases
// qdrantVector (which serves a generic string-ID/metadata shape this domain
// doesn't need, since Chapter ids are already UUIDs).
type VectorIndex interface {
	Upsert(ctx context.Context, id uuid.UUID, vector []float32) error
	Query(ctx context.Context, vector []float32, limit int) ([]VectorHit, error)
}

// VectorHit is one ANN neighbor.
type VectorHit struct {
	ID    uuid.UUID
	Score float64
}

type qdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantIndex connects to Qdrant and ensures the chapter-embeddings
// collection exists, sized for dimensions (1536 for text-embedding-3-large).
func NewQdrantIndex(host string, port int, collection string, dimensions int) (VectorIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	idx := &qdrantIndex{client: client, collection: collection}

	ctx := context.Background()
	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check qdrant collection: %w", err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("create qdrant collection: %w", err)
		}
	}
	return idx, nil
}

func (q *qdrantIndex) Upsert(ctx context.Context, id uuid.UUID, vector []float32) error {
	vec := make([]float32, len(vector))
	copy(vec, vector)
	points := []*qdrant.PointStruct{
		{
			Id:      qdrant.NewIDUUID(id.String()),
			Vectors: qdrant.NewVectorsDense(vec),
		},
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	return err
}

func (q *qdrantIndex) Query(ctx context.Context, vector []float32, limit int) ([]VectorHit, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	lim := uint64(limit)

	result, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &lim,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]VectorHit, 0, len(result))
	for _, point := range result {
		id, err := uuid.Parse(point.Id.GetUuid())
		if err != nil {
			continue
		}
		hits = append(hits, VectorHit{ID: id, Score: float64(point.Score)})
	}
	return hits, nil
}
