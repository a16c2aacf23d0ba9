package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshi/ideaarchitect/internal/model"
)

const (
	sessionCacheKeyPrefix    = "session:"
	sessionUserIndexPrefix   = "session_user:"
	sessionRevokedPrefix     = "session_revoked:"
	sessionUserRevokedPrefix = "session_user_revoked:"
)

// cacheSessionScript は失効マーカーがない場合に限りセッションをキャッシュする。
//
//	KEYS[1] セッションキー  KEYS[2] ユーザー索引
//	KEYS[3] トークン失効マーカー  KEYS[4] ユーザー失効マーカー
//	ARGV[1] セッションJSON  ARGV[2] トークン  ARGV[3] キャッシュTTL(ms)  ARGV[4] 索引TTL(ms)
var cacheSessionScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[3]) == 1 or redis.call("EXISTS", KEYS[4]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SADD", KEYS[2], ARGV[2])
redis.call("PEXPIRE", KEYS[2], ARGV[4])
return 1
`)

// NewRedisClient はREDIS_URLからRedisクライアントを生成し、疎通確認を行う。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// CachedSessionRepo はSessionRepositoryの前段にRedisの読み取りキャッシュを置く。
// キャッシュは最適化に過ぎず、Redis障害時は下位ストアにフォールスルーする。
//
// 削除時はキャッシュを消すだけでなく、キャッシュTTLの間だけ失効マーカーを残す。
// キャッシュへの書き込みはマーカーの確認と同じスクリプト内で行うため、
// 削除前に下位ストアから読んだ行を削除後に書き戻す参照があっても、
// ログアウト済みトークンがキャッシュから復活することはない。
type CachedSessionRepo struct {
	next   SessionRepository
	client *redis.Client
	ttl    time.Duration
}

// NewCachedSessionRepo はCachedSessionRepoを生成する。
func NewCachedSessionRepo(next SessionRepository, client *redis.Client, ttl time.Duration) *CachedSessionRepo {
	return &CachedSessionRepo{next: next, client: client, ttl: ttl}
}

// Create は下位ストアにセッションを作成する。キャッシュには書き込まない。
func (c *CachedSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return c.next.Create(ctx, session)
}

// FindByToken はキャッシュを参照し、ミスした場合は下位ストアから取得してキャッシュする。
// キャッシュの有効期間はTTLとセッションの残り有効期間の短い方。
func (c *CachedSessionRepo) FindByToken(ctx context.Context, token string) (*model.SessionWithUser, error) {
	key := sessionCacheKeyPrefix + token

	cached, err := c.get(ctx, key)
	if err != nil {
		slog.Warn("session cache read failed",
			slog.String("error", err.Error()),
		)
	}
	if cached != nil {
		return cached, nil
	}

	s, err := c.next.FindByToken(ctx, token)
	if err != nil || s == nil {
		return s, err
	}

	ttl := c.ttl
	if remaining := time.Until(s.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl > 0 {
		if err := c.set(ctx, s, ttl); err != nil {
			slog.Warn("session cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return s, nil
}

// DeleteByToken は失効マーカーを残してキャッシュを無効化し、下位ストアのセッションを削除する。
func (c *CachedSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, sessionRevokedPrefix+token, "1", c.markerTTL())
	pipe.Del(ctx, sessionCacheKeyPrefix+token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate session cache: %w", err)
	}
	return c.next.DeleteByToken(ctx, token)
}

// DeleteByUserID はユーザーに紐づくキャッシュを無効化してから下位ストアの全セッションを削除する。
func (c *CachedSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	indexKey := sessionUserIndexPrefix + userID
	tokens, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read session cache index: %w", err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, sessionCacheKeyPrefix+t)
	}
	keys = append(keys, indexKey)

	// 索引にまだ載っていない参照中のトークンもユーザー単位のマーカーで止める
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, sessionUserRevokedPrefix+userID, "1", c.markerTTL())
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate session cache: %w", err)
	}

	return c.next.DeleteByUserID(ctx, userID)
}

func (c *CachedSessionRepo) get(ctx context.Context, key string) (*model.SessionWithUser, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s model.SessionWithUser
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		// 壊れたデータは削除する
		c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// set は失効マーカーがなければセッションと、ユーザー単位の無効化に使う索引を書き込む。
func (c *CachedSessionRepo) set(ctx context.Context, s *model.SessionWithUser, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttlMillis := ttl.Milliseconds()
	if ttlMillis < 1 {
		ttlMillis = 1
	}
	keys := []string{
		sessionCacheKeyPrefix + s.Token,
		sessionUserIndexPrefix + s.UserID,
		sessionRevokedPrefix + s.Token,
		sessionUserRevokedPrefix + s.UserID,
	}
	return cacheSessionScript.Run(ctx, c.client, keys,
		data, s.Token, ttlMillis, c.markerTTL().Milliseconds(),
	).Err()
}

// markerTTL は失効マーカーの保持期間。キャッシュ済みの値が消えるまで残す。
func (c *CachedSessionRepo) markerTTL() time.Duration {
	if c.ttl < time.Second {
		return time.Second
	}
	return c.ttl
}

// compile-time interface check
var _ SessionRepository = (*CachedSessionRepo)(nil)
