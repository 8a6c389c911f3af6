// Package comm implements the communication relay (spec §4.2): task-
// scoped messages between patients, pharmacies and physicians, gated by
// task state, content length, and a per-task-per-sender quota.
//
// Grounded on the teacher's core/pkg/kernel (limiter_redis.go's atomic
// Lua token-bucket pattern, adapted here to a fixed per-task-per-sender
// counter rather than a refill-rate bucket — the spec's quota is a hard
// cap, not a rate) and core/pkg/store.ReceiptStore (sender-scoped,
// id-keyed map) for the in-memory message index.
package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/erx-dienst/erx-core/internal/clock"
	"github.com/erx-dienst/erx-core/pkg/erx/audit"
	"github.com/erx-dienst/erx-core/pkg/erx/config"
	"github.com/erx-dienst/erx-core/pkg/erx/task"
)

var (
	ErrNotFound        = errors.New("comm: not found")
	ErrForbidden       = errors.New("comm: forbidden")
	ErrInvalidSender   = errors.New("comm: sender must be the authenticated caller")
	ErrSameParty       = errors.New("comm: sender and recipient must differ")
	ErrTaskState       = errors.New("comm: task is not in an allowed state for this kind")
	ErrContentTooLong  = errors.New("comm: content exceeds the byte budget")
	ErrQuotaExceeded   = errors.New("comm: per-task-per-sender quota exceeded")
	ErrAlreadyReceived = errors.New("comm: cannot delete a received message")
	ErrRateLimited     = errors.New("comm: sender is posting too fast")
)

// Kind is the Communication sum type discriminator (§3).
type Kind string

const (
	KindInfoReq          Kind = "info-req"
	KindReply            Kind = "reply"
	KindDispenseRequest  Kind = "dispense-req"
	KindRepresentative   Kind = "representative"
)

// taskStateGate lists the kinds that require an existing, visible,
// state-gated task, with the task statuses each kind allows.
var taskStateGate = map[Kind][]task.Status{
	KindDispenseRequest: {task.StatusReady, task.StatusInProgress},
	KindReply:           {task.StatusDraft, task.StatusReady, task.StatusInProgress},
}

// Message is one Communication instance (§3).
type Message struct {
	ID         string
	Kind       Kind
	Sender     string
	Recipient  string
	BasedOn    string // task id, when Kind references a task
	Content    string
	Medications []string
	Sent       time.Time
	Received   *time.Time
}

// QuotaLimiter checks and consumes one unit of a per-(task,sender,kind)
// quota atomically. Satisfied by RedisQuota or inProcessQuota.
type QuotaLimiter interface {
	Allow(ctx context.Context, taskID, sender string, kind Kind, limit int) (bool, error)
}

// Relay is the communication relay.
type Relay struct {
	mu       sync.RWMutex
	clock    clock.Clock
	audit    *audit.Store
	tasks    *task.Store
	quota    QuotaLimiter
	cfg      *config.Config
	byID     map[string]*Message
	byTask   map[string][]*Message
	seq      uint64
	gate     *statePolicy

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// New constructs a Relay.
func New(c clock.Clock, a *audit.Store, tasks *task.Store, quota QuotaLimiter, cfg *config.Config) *Relay {
	if c == nil {
		c = clock.System{}
	}
	if quota == nil {
		quota = NewInProcessQuota()
	}
	gate, err := newStatePolicy(taskStateGate)
	if err != nil {
		// taskStateGate is a compile-time constant; a compile failure
		// here is a programmer error, not a runtime one.
		panic(fmt.Sprintf("comm: state gate policy invalid: %v", err))
	}
	return &Relay{
		clock:  c,
		gate:   gate,
		audit:  a,
		tasks:  tasks,
		quota:  quota,
		cfg:    cfg,
		byID:     make(map[string]*Message),
		byTask:   make(map[string][]*Message),
		limiters: make(map[string]*rate.Limiter),
	}
}

// senderLimiter returns the per-sender burst limiter, creating one on
// first use. Bounds how fast a single sender can flood Post regardless of
// the per-task quota, the way the teacher's GlobalRateLimiter keys a
// *rate.Limiter per visitor IP.
func (r *Relay) senderLimiter(sender string) *rate.Limiter {
	r.limiterMu.Lock()
	defer r.limiterMu.Unlock()
	l, ok := r.limiters[sender]
	if !ok {
		l = rate.NewLimiter(rate.Limit(5), 10)
		r.limiters[sender] = l
	}
	return l
}

// Post validates and stores a new Communication (§4.2).
func (r *Relay) Post(ctx context.Context, agent task.Agent, msg Message) (posted *Message, err error) {
	g := r.audit.Begin(audit.ActionCreate, audit.SubTypeCreate, audit.Agent{ActorID: agent.ID, Name: agent.Name})
	defer g.Done(ctx, &err)

	if msg.Sender != agent.ID {
		return nil, fmt.Errorf("%w: sender=%s caller=%s", ErrInvalidSender, msg.Sender, agent.ID)
	}
	if !r.senderLimiter(msg.Sender).Allow() {
		return nil, fmt.Errorf("%w: sender=%s", ErrRateLimited, msg.Sender)
	}
	if msg.Sender == msg.Recipient {
		return nil, ErrSameParty
	}
	if r.contentLimit() > 0 && len(msg.Content) > r.contentLimit() {
		return nil, fmt.Errorf("%w: %d > %d", ErrContentTooLong, len(msg.Content), r.contentLimit())
	}

	if gated, _ := r.gate.gated(msg.Kind, ""); gated {
		if msg.BasedOn == "" {
			return nil, fmt.Errorf("%w: kind %s requires based-on task", ErrTaskState, msg.Kind)
		}
		snap, found := r.tasks.Peek(msg.BasedOn)
		if !found {
			return nil, fmt.Errorf("%w: task %s", ErrNotFound, msg.BasedOn)
		}
		if !task.Visible(snap, agent, "", "") {
			return nil, fmt.Errorf("%w: caller does not match task %s", ErrForbidden, msg.BasedOn)
		}
		if _, allowed := r.gate.gated(msg.Kind, snap.Status); !allowed {
			return nil, fmt.Errorf("%w: task %s is %s", ErrTaskState, msg.BasedOn, snap.Status)
		}
		g.Patient(snap.PatientID.String()).Description(string(snap.PrescriptionID))
	}

	quotaOK, err := r.quota.Allow(ctx, msg.BasedOn, msg.Sender, msg.Kind, r.quotaLimit())
	if err != nil {
		return nil, fmt.Errorf("comm: quota check: %w", err)
	}
	if !quotaOK {
		return nil, fmt.Errorf("%w: task=%s sender=%s kind=%s", ErrQuotaExceeded, msg.BasedOn, msg.Sender, msg.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	stored := msg
	stored.ID = fmt.Sprintf("C%011d", r.seq)
	stored.Sent = r.clock.Now()
	r.byID[stored.ID] = &stored
	if stored.BasedOn != "" {
		r.byTask[stored.BasedOn] = append(r.byTask[stored.BasedOn], &stored)
	}
	g.What("Communication/" + stored.ID)

	return &stored, nil
}

func (r *Relay) contentLimit() int {
	if r.cfg == nil {
		return 0
	}
	return r.cfg.CommunicationContentLimitBytes
}

func (r *Relay) quotaLimit() int {
	if r.cfg == nil || r.cfg.CommunicationQuota <= 0 {
		return 10
	}
	return r.cfg.CommunicationQuota
}

// Get returns a message visible to agent (sender or recipient, §3).
func (r *Relay) Get(ctx context.Context, agent task.Agent, id string) (msg *Message, err error) {
	g := r.audit.Begin(audit.ActionRead, audit.SubTypeRead, audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Communication/" + id)
	defer g.Done(ctx, &err)

	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if agent.ID != m.Sender && agent.ID != m.Recipient {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, id)
	}
	cp := *m
	return &cp, nil
}

// List returns every message visible to agent, optionally scoped to a task.
func (r *Relay) List(ctx context.Context, agent task.Agent, taskID string) (msgs []*Message, err error) {
	g := r.audit.Begin(audit.ActionRead, audit.SubTypeRead, audit.Agent{ActorID: agent.ID, Name: agent.Name})
	defer g.Done(ctx, &err)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var pool []*Message
	if taskID != "" {
		pool = r.byTask[taskID]
	} else {
		for _, m := range r.byID {
			pool = append(pool, m)
		}
	}
	for _, m := range pool {
		if agent.ID == m.Sender || agent.ID == m.Recipient {
			cp := *m
			msgs = append(msgs, &cp)
		}
	}
	return msgs, nil
}

// Delete removes a message, restricted to the sender, before it has a
// received timestamp (§4.2).
func (r *Relay) Delete(ctx context.Context, agent task.Agent, id string) (err error) {
	g := r.audit.Begin(audit.ActionDelete, audit.SubTypeDelete, audit.Agent{ActorID: agent.ID, Name: agent.Name}).What("Communication/" + id)
	defer g.Done(ctx, &err)

	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if agent.ID != m.Sender {
		return fmt.Errorf("%w: only the sender may delete %s", ErrForbidden, id)
	}
	if m.Received != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyReceived, id)
	}
	delete(r.byID, id)
	if m.BasedOn != "" {
		r.byTask[m.BasedOn] = removeMessage(r.byTask[m.BasedOn], m)
	}
	return nil
}

func removeMessage(list []*Message, target *Message) []*Message {
	out := list[:0]
	for _, m := range list {
		if m != target {
			out = append(out, m)
		}
	}
	return out
}

// ClearForTask cascade-deletes every communication referencing taskID,
// invoked by task.Close and task.Abort (§4.1, §4.2).
func (r *Relay) ClearForTask(ctx context.Context, taskID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.byTask[taskID]
	for _, m := range msgs {
		delete(r.byID, m.ID)
	}
	delete(r.byTask, taskID)
	return len(msgs), nil
}

// quotaIncrementScript atomically checks and increments a per-task,
// per-sender, per-kind counter, adapted from the teacher's
// redisTokenBucketScript — here a fixed cap rather than a refill rate,
// since the spec's quota is "at most N", not a throughput limit.
var quotaIncrementScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return {0, current}
end
current = redis.call("INCR", key)
redis.call("EXPIRE", key, 2592000)
return {1, current}
`)

// RedisQuota implements QuotaLimiter against Redis, for multi-instance
// deployments where the relay itself may be horizontally scaled.
type RedisQuota struct {
	client *redis.Client
}

// NewRedisQuota constructs a RedisQuota against addr.
func NewRedisQuota(addr string) *RedisQuota {
	return &RedisQuota{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Allow checks and consumes one unit of the (task, sender, kind) quota.
func (q *RedisQuota) Allow(ctx context.Context, taskID, sender string, kind Kind, limit int) (bool, error) {
	key := fmt.Sprintf("erx:comm-quota:%s:%s:%s", taskID, sender, kind)
	res, err := quotaIncrementScript.Run(ctx, q.client, []string{key}, limit).Result()
	if err != nil {
		return false, fmt.Errorf("comm: redis quota: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("comm: unexpected quota script response")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// inProcessQuota is the default QuotaLimiter when no Redis address is
// configured: a mutex-guarded map, sufficient for a single-instance
// deployment (§5: the service is single-writer per shard).
type inProcessQuota struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewInProcessQuota constructs the in-memory fallback QuotaLimiter.
func NewInProcessQuota() QuotaLimiter {
	return &inProcessQuota{counts: make(map[string]int)}
}

func (q *inProcessQuota) Allow(ctx context.Context, taskID, sender string, kind Kind, limit int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := taskID + "|" + sender + "|" + string(kind)
	if q.counts[key] >= limit {
		return false, nil
	}
	q.counts[key]++
	return true, nil
}
