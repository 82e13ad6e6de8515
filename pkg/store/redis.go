package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conduit-lang/docmap/pkg/document"
)

// Redis stores each document as BSON bytes under prefix+collection+":"+key
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "docmap:",
	}
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisWithClient(client, config.Prefix), nil
}

// NewRedisWithClient creates a Redis store over an existing client
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(collection, idKey string) string {
	return r.prefix + collection + ":" + idKey
}

// FetchByID returns the document stored under id
func (r *Redis) FetchByID(ctx context.Context, collection string, id document.Value) (*document.Document, error) {
	data, err := r.client.Get(ctx, r.key(collection, Key(id))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return document.Unmarshal(data)
}

// FetchByIDs returns the documents stored under ids with a single MGET
func (r *Redis) FetchByIDs(ctx context.Context, collection string, ids []document.Value) ([]*document.Document, error) {
	if len(ids) == 0 {
		return []*document.Document{}, nil
	}

	unique := uniqueKeys(ids)
	keys := make([]string, len(unique))
	for i, k := range unique {
		keys[i] = r.key(collection, k)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	found := make(map[string]*document.Document, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected MGET value of type %T for %s", v, keys[i])
		}
		doc, err := document.Unmarshal([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", keys[i], err)
		}
		found[unique[i]] = doc
	}
	return align(ids, found), nil
}

// Put stores doc without expiry
func (r *Redis) Put(ctx context.Context, collection string, doc *document.Document) error {
	if collection == "" {
		return ErrInvalidCollection
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(collection, Key(id)), data, 0).Err()
}

// Delete removes the document stored under id
func (r *Redis) Delete(ctx context.Context, collection string, id document.Value) error {
	n, err := r.client.Del(ctx, r.key(collection, Key(id))).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	return r.client.Close()
}
