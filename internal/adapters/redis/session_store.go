// Package redis implements the ephemeral session store. Everything in
// it is TTL-scoped and reconstructible; the store is never
// authoritative for long-lived memory.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
)

// DefaultTTL is applied when a session context does not carry its own
const DefaultTTL = 2 * time.Hour

const (
	sessionKeyPrefix    = "session:"
	turnListKeyPrefix   = "turn:list:"
	toolOutputKeyPrefix = "tool_output:"
)

// Store is a go-redis backed ports.SessionStore
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore connects to the redis instance at url (redis://host:port)
func NewStore(url string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: redis.NewClient(opts), ttl: ttl}, nil
}

func turnListKey(conversationID string) string {
	return turnListKeyPrefix + conversationID
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func toolOutputKey(sessionID, toolName string) string {
	return toolOutputKeyPrefix + sessionID + ":" + toolName
}

// AppendTurn pushes a turn onto the conversation list and refreshes
// the list TTL.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, turn models.ConversationTurn) error {
	encoded, err := msgpack.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to encode turn: %w", err)
	}

	key := turnListKey(conversationID)
	if err := s.client.RPush(ctx, key, encoded).Err(); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh turn list ttl: %w", err)
	}
	return nil
}

// RecentTurns returns the last limit turns, oldest first
func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = 10
	}

	raw, err := s.client.LRange(ctx, turnListKey(conversationID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch turns: %w", err)
	}

	turns := make([]models.ConversationTurn, 0, len(raw))
	for _, item := range raw {
		var turn models.ConversationTurn
		if err := msgpack.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// ClearTurns removes a conversation's turn list, returning how many
// turns it held.
func (s *Store) ClearTurns(ctx context.Context, conversationID string) (int, error) {
	key := turnListKey(conversationID)
	count, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("failed to clear turns: %w", err)
	}
	return int(count), nil
}

// SaveContext stores a session context under its own TTL
func (s *Store) SaveContext(ctx context.Context, sc *models.SessionContext) error {
	encoded, err := msgpack.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to encode session context: %w", err)
	}

	ttl := s.ttl
	if sc.TTLSeconds > 0 {
		ttl = time.Duration(sc.TTLSeconds) * time.Second
	}
	if err := s.client.Set(ctx, sessionKey(sc.SessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session context: %w", err)
	}
	return nil
}

func (s *Store) GetContext(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	raw, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.NewDomainError(domain.ErrNotFound, "session not found: "+sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session context: %w", err)
	}

	var sc models.SessionContext
	if err := msgpack.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode session context: %w", err)
	}
	return &sc, nil
}

func (s *Store) SetToolOutput(ctx context.Context, sessionID, toolName string, output any) error {
	encoded, err := msgpack.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to encode tool output: %w", err)
	}
	if err := s.client.Set(ctx, toolOutputKey(sessionID, toolName), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save tool output: %w", err)
	}
	return nil
}

func (s *Store) GetToolOutput(ctx context.Context, sessionID, toolName string) (any, error) {
	raw, err := s.client.Get(ctx, toolOutputKey(sessionID, toolName)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.NewDomainError(domain.ErrNotFound, "tool output not found: "+toolName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tool output: %w", err)
	}

	var output any
	if err := msgpack.Unmarshal(raw, &output); err != nil {
		return nil, fmt.Errorf("failed to decode tool output: %w", err)
	}
	return output, nil
}

// ClearAll deletes every key the store owns, leaving foreign keys in a
// shared redis untouched.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, prefix := range []string{sessionKeyPrefix, turnListKeyPrefix, toolOutputKeyPrefix} {
		if err := s.deleteByPrefix(ctx, prefix); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteByPrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan %s keys: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete %s keys: %w", prefix, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *Store) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
