// Package qdrant implements the encrypted vector store for semantic
// memories. Summaries are encrypted before leaving the process; the
// vector itself is stored in the clear so similarity search works.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

const (
	// CollectionName holds every semantic memory point
	CollectionName = "semantic_memory"

	// The REST port maps to its gRPC sibling; the go client is gRPC-only
	defaultGRPCPort = 6334
	restPort        = 6333
)

// Store is a qdrant-backed ports.SemanticStore
type Store struct {
	client     *qdrant.Client
	crypto     ports.EncryptionService
	dimensions int

	mu      sync.Mutex
	ensured bool
}

// NewStore connects to the qdrant instance at rawURL. The URL uses the
// REST convention (http://host:6333); the port is translated to the
// gRPC listener.
func NewStore(rawURL, apiKey string, dimensions int, crypto ports.EncryptionService) (*Store, error) {
	host, port, useTLS, err := parseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Store{
		client:     client,
		crypto:     crypto,
		dimensions: dimensions,
	}, nil
}

func parseEndpoint(rawURL string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	host = u.Hostname()
	if host == "" {
		return "", 0, false, fmt.Errorf("qdrant url %q has no host", rawURL)
	}

	port = defaultGRPCPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant port %q", p)
		}
		if n != restPort {
			port = n
		}
	}

	return host, port, u.Scheme == "https", nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	s.ensured = true
	return nil
}

func (s *Store) buildPayload(entry *models.SemanticMemory) (map[string]*qdrant.Value, error) {
	encrypted, err := s.crypto.EncryptString(entry.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt summary: %w", err)
	}

	fields := map[string]any{
		"summary_encrypted": encrypted,
		"source":            string(entry.Source),
		"timestamp":         entry.CreatedAt.UTC().Format(time.RFC3339),
		"confidence":        entry.Confidence,
		"conversation_id":   entry.ConversationID,
		"tool_name":         entry.ToolName,
		"reference_id":      entry.ID,
		"created_at":        entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	payload := make(map[string]*qdrant.Value, len(fields))
	for key, value := range fields {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("failed to convert payload value %s: %w", key, err)
		}
		payload[key] = val
	}
	return payload, nil
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}

func payloadFloat(payload map[string]*qdrant.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		switch kv := v.Kind.(type) {
		case *qdrant.Value_DoubleValue:
			return kv.DoubleValue
		case *qdrant.Value_IntegerValue:
			return float64(kv.IntegerValue)
		}
	}
	return 0
}

func pointUUID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u, ok := id.PointIdOptions.(*qdrant.PointId_Uuid); ok {
		return u.Uuid
	}
	return ""
}

func (s *Store) decodeEntry(id string, payload map[string]*qdrant.Value) (*models.SemanticMemory, error) {
	summary, err := s.crypto.DecryptString(payloadString(payload, "summary_encrypted"))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt summary for %s: %w", id, err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, payloadString(payload, "created_at"))
	if createdAt.IsZero() {
		createdAt, _ = time.Parse(time.RFC3339, payloadString(payload, "timestamp"))
	}

	return &models.SemanticMemory{
		ID:             id,
		Summary:        summary,
		Source:         models.MemorySource(payloadString(payload, "source")),
		ConversationID: payloadString(payload, "conversation_id"),
		ToolName:       payloadString(payload, "tool_name"),
		Confidence:     payloadFloat(payload, "confidence"),
		CreatedAt:      createdAt,
	}, nil
}

// Upsert stores a semantic memory point keyed by its UUID
func (s *Store) Upsert(ctx context.Context, entry *models.SemanticMemory) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	if len(entry.Vector) != s.dimensions {
		return fmt.Errorf("vector has %d dimensions, store expects %d", len(entry.Vector), s.dimensions)
	}

	payload, err := s.buildPayload(entry)
	if err != nil {
		return err
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionName,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(entry.ID),
			Vectors: qdrant.NewVectors(entry.Vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func searchFilter(opts ports.SemanticSearchOptions) *qdrant.Filter {
	var must []*qdrant.Condition

	if opts.SourceFilter != "" {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "source",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: opts.SourceFilter}},
				},
			},
		})
	}
	if opts.MinConfidence > 0 {
		gte := opts.MinConfidence
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "confidence",
					Range: &qdrant.Range{Gte: &gte},
				},
			},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Search returns the nearest memories above the confidence floor,
// ordered by similarity then recency.
func (s *Store) Search(ctx context.Context, opts ports.SemanticSearchOptions) ([]*models.ScoredSemanticMemory, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	resp, err := s.client.GetPointsClient().Search(ctx, &qdrant.SearchPoints{
		CollectionName: CollectionName,
		Vector:         opts.Vector,
		Limit:          uint64(limit),
		Filter:         searchFilter(opts),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]*models.ScoredSemanticMemory, 0, len(resp.Result))
	for _, point := range resp.Result {
		entry, err := s.decodeEntry(pointUUID(point.Id), point.Payload)
		if err != nil {
			return nil, err
		}
		if opts.MinConfidence > 0 && entry.Confidence < opts.MinConfidence {
			continue
		}
		results = append(results, &models.ScoredSemanticMemory{
			Memory: entry,
			Score:  point.Score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	return results, nil
}

// Get fetches a single point by id
func (s *Store) Get(ctx context.Context, id string) (*models.SemanticMemory, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.GetPointsClient().Get(ctx, &qdrant.GetPoints{
		CollectionName: CollectionName,
		Ids:            []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get point %s: %w", id, err)
	}
	if len(resp.Result) == 0 {
		return nil, domain.NewDomainError(domain.ErrMemoryNotFound, "semantic memory not found: "+id)
	}

	return s.decodeEntry(id, resp.Result[0].Payload)
}

// Update rewrites the mutable payload fields of an existing point
func (s *Store) Update(ctx context.Context, id string, update ports.SemanticUpdate) error {
	if update.Summary == nil && update.Confidence == nil {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value)
	if update.Summary != nil {
		encrypted, err := s.crypto.EncryptString(*update.Summary)
		if err != nil {
			return fmt.Errorf("failed to encrypt summary: %w", err)
		}
		val, err := qdrant.NewValue(encrypted)
		if err != nil {
			return fmt.Errorf("failed to convert summary payload: %w", err)
		}
		payload["summary_encrypted"] = val
	}
	if update.Confidence != nil {
		val, err := qdrant.NewValue(*update.Confidence)
		if err != nil {
			return fmt.Errorf("failed to convert confidence payload: %w", err)
		}
		payload["confidence"] = val
	}

	_, err := s.client.GetPointsClient().SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: CollectionName,
		Payload:        payload,
		PointsSelector: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update point %s: %w", id, err)
	}
	return nil
}

// Delete removes a point by id
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point %s: %w", id, err)
	}
	return nil
}

// Scroll pages through all points for listing. Results carry no
// vectors and no similarity score.
func (s *Store) Scroll(ctx context.Context, offset, limit int) ([]*models.SemanticMemory, int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}

	points := s.client.GetPointsClient()

	countResp, err := points.Count(ctx, &qdrant.CountPoints{
		CollectionName: CollectionName,
		Exact:          boolPtr(true),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count points: %w", err)
	}
	total := int(countResp.GetResult().GetCount())

	var entries []*models.SemanticMemory
	var cursor *qdrant.PointId
	skipped := 0
	pageSize := uint32(100)

	for len(entries) < limit {
		resp, err := points.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Offset:         cursor,
			Limit:          &pageSize,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scroll points: %w", err)
		}
		if len(resp.Result) == 0 {
			break
		}

		for _, point := range resp.Result {
			if skipped < offset {
				skipped++
				continue
			}
			if len(entries) >= limit {
				break
			}
			entry, err := s.decodeEntry(pointUUID(point.Id), point.Payload)
			if err != nil {
				return nil, 0, err
			}
			entries = append(entries, entry)
		}

		cursor = resp.NextPageOffset
		if cursor == nil {
			break
		}
	}

	return entries, total, nil
}

// ClearAll drops the collection and recreates it empty
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.ensured = false
	s.mu.Unlock()

	if err := s.client.DeleteCollection(ctx, CollectionName); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return s.ensureCollection(ctx)
}

func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func boolPtr(b bool) *bool {
	return &b
}
