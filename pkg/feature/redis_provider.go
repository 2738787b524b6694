package feature

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/togglekit/pkg/cache"
	"github.com/dmitrymomot/togglekit/pkg/logger"
	"github.com/dmitrymomot/togglekit/pkg/redis"
)

const (
	DefaultKey             = "feature:flags"
	DefaultRefreshInterval = 5 * time.Second
)

type flagSet = map[string]*Flag

// RedisProvider keeps all flags in one shared Redis key so that every
// instance of a horizontally scaled application sees the same state.
//
// Writes are optimistic read-modify-write updates of the whole set followed
// by a ChangeMessage on the change channel. Reads are served from a local
// memo that lives for RefreshInterval or until a change message arrives,
// whichever comes first.
type RedisProvider struct {
	client     *redis.Client
	key        string
	channel    string
	refresh    time.Duration
	strategies map[string]Strategy
	log        *slog.Logger
	now        func() time.Time

	memo    *cache.ExpiringCache[flagSet]
	memoKey string
	gen     atomic.Uint64 // bumped by every invalidation

	handlerID redis.HandlerID

	smu         sync.RWMutex
	subscribers []func(ChangeMessage)
	closeOnce   sync.Once
}

var _ Provider = (*RedisProvider)(nil)

// RedisOption configures a RedisProvider.
type RedisOption func(*RedisProvider)

// WithKey sets the key holding the flag set. The change channel is the key
// with a ":changed" suffix.
func WithKey(key string) RedisOption {
	return func(p *RedisProvider) {
		if key != "" {
			p.key = key
		}
	}
}

// WithRefreshInterval bounds how long flags are served from the local memo.
func WithRefreshInterval(d time.Duration) RedisOption {
	return func(p *RedisProvider) {
		if d > 0 {
			p.refresh = d
		}
	}
}

// WithStrategy registers a rollout strategy under name. Flags refer to it
// through Flag.Strategy.
func WithStrategy(name string, s Strategy) RedisOption {
	return func(p *RedisProvider) {
		if name != "" && s != nil {
			p.strategies[name] = s
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) RedisOption {
	return func(p *RedisProvider) {
		if l != nil {
			p.log = l
		}
	}
}

// NewRedisProvider creates a provider on top of client and subscribes to the
// change channel. The client is shared: Close does not close it.
func NewRedisProvider(ctx context.Context, client *redis.Client, opts ...RedisOption) (*RedisProvider, error) {
	if client == nil {
		return nil, ErrProviderNotInitialized
	}

	p := &RedisProvider{
		client:     client,
		key:        DefaultKey,
		refresh:    DefaultRefreshInterval,
		strategies: make(map[string]Strategy),
		log:        slog.Default(),
		now:        time.Now,
		memo:       cache.NewExpiring[flagSet](),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.channel = p.key + ":changed"
	p.memoKey = p.memo.Key("flags", p.key)
	p.log = p.log.With(logger.Component("feature"))

	id, err := client.RegisterHandler(ctx, p.channel, p.handleChange)
	if err != nil {
		return nil, errors.Join(ErrOperationFailed, err)
	}
	p.handlerID = id

	return p, nil
}

// Channel returns the channel change messages are published on.
func (p *RedisProvider) Channel() string {
	return p.channel
}

// Subscribe registers fn to be called for every change message, including
// the ones caused by this provider. fn runs on the message handler
// goroutine and must not block for long.
func (p *RedisProvider) Subscribe(fn func(ChangeMessage)) {
	if fn == nil {
		return
	}
	p.smu.Lock()
	p.subscribers = append(p.subscribers, fn)
	p.smu.Unlock()
}

// Refresh drops the local memo so the next read goes to Redis.
func (p *RedisProvider) Refresh() {
	// Bump first: remember compares the generation under the memo lock.
	p.gen.Add(1)
	p.memo.Delete(p.memoKey)
}

func (p *RedisProvider) handleChange(ctx context.Context, payload string) error {
	p.Refresh()

	var msg ChangeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return errors.Join(ErrOperationFailed, err)
	}

	p.log.DebugContext(ctx, "feature flags changed",
		logger.MessageID(msg.ID),
		slog.String("flag", msg.Flag),
		slog.String("action", string(msg.Action)),
	)

	p.smu.RLock()
	subs := slices.Clone(p.subscribers)
	p.smu.RUnlock()
	for _, fn := range subs {
		fn(msg)
	}
	return nil
}

func (p *RedisProvider) flags(ctx context.Context) (flagSet, error) {
	if set, ok := p.memo.Get(p.memoKey, p.now()); ok {
		return set, nil
	}

	gen := p.gen.Load()
	stored, err := redis.GetObject[flagSet](ctx, p.client, p.key)
	if err != nil {
		return nil, errors.Join(ErrOperationFailed, err)
	}

	set := flagSet{}
	if stored != nil && *stored != nil {
		set = *stored
	}
	p.remember(gen, set)
	return set, nil
}

// remember memoizes set loaded at generation gen. A set loaded before the
// last Refresh is served once but not kept.
func (p *RedisProvider) remember(gen uint64, set flagSet) bool {
	return p.memo.SetIf(p.memoKey, p.now().Add(p.refresh), set, func() bool {
		return p.gen.Load() == gen
	})
}

func (p *RedisProvider) lookup(ctx context.Context, name string) (*Flag, error) {
	set, err := p.flags(ctx)
	if err != nil {
		return nil, err
	}
	flag, ok := set[name]
	if !ok || flag == nil {
		return nil, ErrFlagNotFound
	}
	return flag, nil
}

// IsEnabled checks if a flag is enabled for the given context.
func (p *RedisProvider) IsEnabled(ctx context.Context, flagName string) (bool, error) {
	flag, err := p.lookup(ctx, flagName)
	if err != nil {
		return false, err
	}

	if !flag.Enabled {
		return false, nil
	}
	if flag.Strategy == "" {
		return true, nil
	}

	s, ok := p.strategies[flag.Strategy]
	if !ok {
		return false, errors.Join(ErrInvalidStrategy,
			errors.New("strategy "+flag.Strategy+" is not registered"))
	}
	return s.Evaluate(ctx)
}

// GetFlag retrieves a flag by name.
func (p *RedisProvider) GetFlag(ctx context.Context, flagName string) (*Flag, error) {
	flag, err := p.lookup(ctx, flagName)
	if err != nil {
		return nil, err
	}
	return flag.clone(), nil
}

// ListFlags returns all flags sorted by name, optionally filtered by tags.
// A flag matches when it has at least one of the tags.
func (p *RedisProvider) ListFlags(ctx context.Context, tags ...string) ([]*Flag, error) {
	set, err := p.flags(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*Flag, 0, len(set))
	for _, name := range slices.Sorted(maps.Keys(set)) {
		flag := set[name]
		if flag == nil || (len(tags) > 0 && !flag.hasAnyTag(tags)) {
			continue
		}
		result = append(result, flag.clone())
	}
	return result, nil
}

// CreateFlag creates a new flag.
func (p *RedisProvider) CreateFlag(ctx context.Context, flag *Flag) error {
	if err := validate(flag); err != nil {
		return err
	}

	err := p.update(ctx, func(set flagSet) (bool, error) {
		if _, exists := set[flag.Name]; exists {
			return false, ErrFlagExists
		}
		now := p.now().UTC()
		stored := flag.clone()
		stored.CreatedAt, stored.UpdatedAt = now, now
		set[flag.Name] = stored
		return true, nil
	})
	if err != nil {
		return err
	}
	return p.notify(ctx, flag.Name, ActionCreated)
}

// UpdateFlag replaces an existing flag. CreatedAt is preserved.
func (p *RedisProvider) UpdateFlag(ctx context.Context, flag *Flag) error {
	if err := validate(flag); err != nil {
		return err
	}

	err := p.update(ctx, func(set flagSet) (bool, error) {
		existing, ok := set[flag.Name]
		if !ok {
			return false, ErrFlagNotFound
		}
		stored := flag.clone()
		stored.CreatedAt = existing.CreatedAt
		stored.UpdatedAt = p.now().UTC()
		set[flag.Name] = stored
		return true, nil
	})
	if err != nil {
		return err
	}
	return p.notify(ctx, flag.Name, ActionUpdated)
}

// DeleteFlag removes a flag. Removing the last flag deletes the shared key.
func (p *RedisProvider) DeleteFlag(ctx context.Context, flagName string) error {
	err := p.update(ctx, func(set flagSet) (bool, error) {
		if _, ok := set[flagName]; !ok {
			return false, ErrFlagNotFound
		}
		delete(set, flagName)
		return true, nil
	})
	if err != nil {
		return err
	}
	return p.notify(ctx, flagName, ActionDeleted)
}

// Close removes the change handler. The shared client stays open.
func (p *RedisProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.client.RemoveHandler(context.Background(), p.channel, p.handlerID)
		p.memo.Clear()
	})
	return err
}

// update applies fn to a private copy of the stored set inside a watched
// read-modify-write. fn reports whether it changed anything; it may run
// once per attempt.
func (p *RedisProvider) update(ctx context.Context, fn func(set flagSet) (bool, error)) error {
	_, err := redis.WatchedGetSetObject(ctx, p.client, p.key, func(ctx context.Context, old *flagSet) (*flagSet, error) {
		set := flagSet{}
		if old != nil {
			maps.Copy(set, *old)
		}

		changed, err := fn(set)
		if err != nil {
			return nil, err
		}
		if !changed {
			return old, nil
		}
		if len(set) == 0 {
			return nil, nil
		}
		return &set, nil
	})
	if err != nil {
		p.log.ErrorContext(ctx, "failed to update feature flags", logger.Key(p.key), logger.Error(err))
		return unwrapDomainError(err)
	}

	p.Refresh()
	return nil
}

// unwrapDomainError surfaces the package errors returned from inside an
// update so callers can match them without knowing about the store.
func unwrapDomainError(err error) error {
	for _, target := range []error{ErrFlagNotFound, ErrFlagExists, ErrInvalidFlag} {
		if errors.Is(err, target) {
			return target
		}
	}
	return errors.Join(ErrOperationFailed, err)
}

func (p *RedisProvider) notify(ctx context.Context, flagName string, action Action) error {
	msg := ChangeMessage{ID: uuid.NewString(), Flag: flagName, Action: action}
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Join(ErrOperationFailed, err)
	}

	if err := p.client.Publish(ctx, p.channel, string(payload)); err != nil {
		// The change is stored; other instances pick it up after RefreshInterval.
		p.log.WarnContext(ctx, "failed to publish feature flag change",
			logger.Channel(p.channel), logger.MessageID(msg.ID), logger.Error(err))
		return errors.Join(ErrOperationFailed, err)
	}
	return nil
}

func validate(flag *Flag) error {
	if flag == nil {
		return errors.Join(ErrInvalidFlag, errors.New("flag cannot be nil"))
	}
	if flag.Name == "" {
		return errors.Join(ErrInvalidFlag, errors.New("flag name cannot be empty"))
	}
	return nil
}
