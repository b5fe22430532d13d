package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"collabnest/domain"
)

// Cache wraps a Backend with a Redis read-through cache of board task lists.
// Every write evicts the boards it touched. Redis failures fall back to the
// backend without failing the call.
type Cache struct {
	base  Backend
	redis *redis.Client
	ttl   time.Duration
}

var _ Backend = (*Cache)(nil)

func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base backend is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, organization string) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, organization); ok {
		return tasks, nil
	}
	tasks, err := c.base.ListTasks(ctx, organization)
	if err != nil {
		return nil, err
	}
	c.store(ctx, organization, tasks)
	return tasks, nil
}

func (c *Cache) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) FindByClientRef(ctx context.Context, ref string) (domain.Task, error) {
	return c.base.FindByClientRef(ctx, ref)
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) error {
	if err := c.base.CreateTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.Organization)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, t domain.Task) error {
	orgs := []string{t.Organization}
	if old, err := c.base.GetTask(ctx, t.ID); err == nil && old.Organization != t.Organization {
		orgs = append(orgs, old.Organization)
	}
	if err := c.base.UpdateTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, orgs...)
	return nil
}

func (c *Cache) ReorderTasks(ctx context.Context, p domain.Partition, ids []string) ([]domain.Task, error) {
	tasks, err := c.base.ReorderTasks(ctx, p, ids)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var orgs []string
	for _, t := range tasks {
		if _, ok := seen[t.Organization]; !ok {
			seen[t.Organization] = struct{}{}
			orgs = append(orgs, t.Organization)
		}
	}
	c.evict(ctx, orgs...)
	return tasks, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := c.base.DeleteTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, t.Organization)
	return t, nil
}

func (c *Cache) load(ctx context.Context, organization string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := tasksCacheKey(organization)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, organization string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(organization), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, organizations ...string) {
	if c.redis == nil || len(organizations) == 0 {
		return
	}
	keys := make([]string, len(organizations))
	for i, org := range organizations {
		keys[i] = tasksCacheKey(org)
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func tasksCacheKey(organization string) string {
	return "tasks:org:" + organization
}
