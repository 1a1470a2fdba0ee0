package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	catalogdomain "github.com/smallbiznis/learnpay/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultCourseTTL = 5 * time.Minute
	keyCourse        = "learnpay:course:%d"
)

// CourseCache holds read-through course lookups. Misses and backend
// errors are indistinguishable to callers; both fall back to the database.
type CourseCache interface {
	Get(ctx context.Context, id snowflake.ID) (*catalogdomain.Course, bool)
	Set(ctx context.Context, course *catalogdomain.Course)
	Invalidate(ctx context.Context, id snowflake.ID)
}

type CourseCacheParams struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Log    *zap.Logger
}

// NewCourseCache uses redis when a client is configured and an in-process
// TTL map otherwise.
func NewCourseCache(p CourseCacheParams) CourseCache {
	if p.Client == nil {
		return &memoryCourseCache{entries: NewTTLCache[snowflake.ID, catalogdomain.Course](), ttl: defaultCourseTTL}
	}
	return &redisCourseCache{client: p.Client, ttl: defaultCourseTTL, log: p.Log.Named("cache.course")}
}

type memoryCourseCache struct {
	entries Cache[snowflake.ID, catalogdomain.Course]
	ttl     time.Duration
}

func (c *memoryCourseCache) Get(_ context.Context, id snowflake.ID) (*catalogdomain.Course, bool) {
	course, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	return &course, true
}

func (c *memoryCourseCache) Set(_ context.Context, course *catalogdomain.Course) {
	if course == nil || course.ID == 0 {
		return
	}
	c.entries.Set(course.ID, *course, c.ttl)
}

func (c *memoryCourseCache) Invalidate(_ context.Context, id snowflake.ID) {
	c.entries.Delete(id)
}

type redisCourseCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func (c *redisCourseCache) Get(ctx context.Context, id snowflake.ID) (*catalogdomain.Course, bool) {
	raw, err := c.client.Get(ctx, fmt.Sprintf(keyCourse, id.Int64())).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("course cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var course catalogdomain.Course
	if err := json.Unmarshal(raw, &course); err != nil {
		return nil, false
	}
	return &course, true
}

func (c *redisCourseCache) Set(ctx context.Context, course *catalogdomain.Course) {
	if course == nil || course.ID == 0 {
		return
	}
	raw, err := json.Marshal(course)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, fmt.Sprintf(keyCourse, course.ID.Int64()), raw, c.ttl).Err(); err != nil {
		c.log.Debug("course cache write failed", zap.Error(err))
	}
}

func (c *redisCourseCache) Invalidate(ctx context.Context, id snowflake.ID) {
	if err := c.client.Del(ctx, fmt.Sprintf(keyCourse, id.Int64())).Err(); err != nil {
		c.log.Warn("course cache invalidate failed", zap.Int64("course_id", id.Int64()), zap.Error(err))
	}
}
