package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

type backend interface {
	FetchTasksByOwner(ctx context.Context, owner string) ([]domain.RawTask, error)
	CreateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error)
	UpdateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error)
	DeleteTask(ctx context.Context, id string) error
}

// Cache wraps a task store with a Redis-backed read-through cache of each
// owner's task list. Writes go to the store and evict the owner's entry.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// storeIfCurrent writes the owner's list and id index only when the owner's
// generation still matches the one read before the backend fetch.
// KEYS[1] generation, KEYS[2] list, KEYS[3..] index entries.
// ARGV[1] generation, ARGV[2] list, ARGV[3] ttl ms, ARGV[4] owner.
var storeIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1])
if (gen or '') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
for i = 3, #KEYS do
	redis.call('SET', KEYS[i], ARGV[4], 'PX', ARGV[3])
end
return 1
`)

// generationTTL bounds how long an owner's generation counter is kept.
const generationTTL = 24 * time.Hour

// FetchTasksByOwner serves the owner's list from Redis or the backend. A list
// fetched from the backend is cached only if no write evicted the owner while
// the fetch was running.
func (c *Cache) FetchTasksByOwner(ctx context.Context, owner string) ([]domain.RawTask, error) {
	if tasks, ok := c.loadTasks(ctx, owner); ok {
		return tasks, nil
	}

	gen, cacheable := c.generation(ctx, owner)
	tasks, err := c.base.FetchTasksByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.storeTasks(ctx, owner, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error) {
	created, err := c.base.CreateTask(ctx, task)
	if err != nil {
		return domain.RawTask{}, err
	}
	c.evict(ctx, ownerOf(created, task), created.Identity())
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error) {
	updated, err := c.base.UpdateTask(ctx, task)
	if err != nil {
		return domain.RawTask{}, err
	}
	c.evict(ctx, ownerOf(updated, task), updated.Identity())
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	owner := c.lookupOwner(ctx, id)
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, owner, id)
	return nil
}

func ownerOf(result, sent domain.RawTask) string {
	if result.Owner != "" {
		return result.Owner
	}
	return sent.Owner
}

func (c *Cache) loadTasks(ctx context.Context, owner string) ([]domain.RawTask, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(owner)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(owner)).Err()
		}
		return nil, false
	}
	var tasks []domain.RawTask
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(owner)).Err()
		return nil, false
	}
	return tasks, true
}

// generation returns the owner's eviction counter ("" when never evicted).
// It reports false when Redis cannot be read, which disables the store.
func (c *Cache) generation(ctx context.Context, owner string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	gen, err := c.redis.Get(ctx, tasksGenerationKey(owner)).Result()
	if err == redis.Nil {
		return "", true
	}
	if err != nil {
		return "", false
	}
	return gen, true
}

// storeTasks caches the list and an id to owner index read by DeleteTask,
// unless the owner's generation moved past gen.
func (c *Cache) storeTasks(ctx context.Context, owner, gen string, tasks []domain.RawTask) bool {
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return false
	}
	keys := make([]string, 0, len(tasks)+2)
	keys = append(keys, tasksGenerationKey(owner), tasksCacheKey(owner))
	for _, t := range tasks {
		if id := t.Identity(); id != "" {
			keys = append(keys, taskOwnerKey(id))
		}
	}
	ttl := c.ttl.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	stored, err := storeIfCurrent.Run(ctx, c.redis, keys, gen, data, ttl, owner).Int()
	return err == nil && stored == 1
}

func (c *Cache) lookupOwner(ctx context.Context, id string) string {
	if c.redis == nil {
		return ""
	}
	owner, err := c.redis.Get(ctx, taskOwnerKey(id)).Result()
	if err != nil {
		return ""
	}
	return owner
}

func (c *Cache) evict(ctx context.Context, owner, id string) {
	if c.redis == nil {
		return
	}
	if owner == "" && id == "" {
		return
	}
	pipe := c.redis.TxPipeline()
	if owner != "" {
		pipe.Incr(ctx, tasksGenerationKey(owner))
		pipe.Expire(ctx, tasksGenerationKey(owner), generationTTL)
		pipe.Del(ctx, tasksCacheKey(owner))
	}
	if id != "" {
		pipe.Del(ctx, taskOwnerKey(id))
	}
	_, _ = pipe.Exec(ctx)
}

func tasksCacheKey(owner string) string {
	return "tasks:" + owner
}

func tasksGenerationKey(owner string) string {
	return "tasks-gen:" + owner
}

func taskOwnerKey(id string) string {
	return "task-owner:" + id
}
