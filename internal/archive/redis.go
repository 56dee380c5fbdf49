package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/champions-gambit/internal/domain"
)

const (
	defaultRedisTTL = 30 * 24 * time.Hour
	recentLimit     = 100
	recentKey       = "gambit:recent"
)

// RedisSink stores each game as JSON under its session id and keeps a capped list of the
// most recent ids. Saving a session again replaces its game and moves it to the front.
type RedisSink struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSink(redisURL string, ttl time.Duration) (*RedisSink, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisSink{rdb: rdb, ttl: ttl}, nil
}

func (s *RedisSink) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *RedisSink) Save(ctx context.Context, rec domain.GameRecord) error {
	raw, err := json.Marshal(NewDocument(rec))
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	if err := s.rdb.Set(ctx, gameKey(rec.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, recentKey, 0, rec.SessionID)
		pipe.LPush(ctx, recentKey, rec.SessionID)
		pipe.LTrim(ctx, recentKey, 0, recentLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis index: %w", err)
	}
	return nil
}

func (s *RedisSink) Get(ctx context.Context, sessionID string) (domain.GameRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, gameKey(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.GameRecord{}, false, nil
	}
	if err != nil {
		return domain.GameRecord{}, false, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.GameRecord{}, false, fmt.Errorf("decode game: %w", err)
	}
	return doc.Record(), true, nil
}

// Recent returns up to limit games, newest first. Expired entries are skipped.
func (s *RedisSink) Recent(ctx context.Context, limit int) ([]domain.GameRecord, error) {
	if limit <= 0 || limit > recentLimit {
		limit = recentLimit
	}
	ids, err := s.rdb.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.GameRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func gameKey(id string) string { return "gambit:game:" + strings.TrimSpace(id) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if u.Scheme != "redis" || u.Host == "" {
		return nil, fmt.Errorf("invalid redis url %q", raw)
	}
	pass, _ := u.User.Password()
	db := 0
	if p := strings.Trim(u.Path, "/"); p != "" {
		if db, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
	}
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
