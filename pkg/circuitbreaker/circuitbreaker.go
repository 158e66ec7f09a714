package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed   State = iota // 正常放行
	StateOpen                  // 直接拒绝
	StateHalfOpen              // 放少量请求探测
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

type Config struct {
	// 连续失败多少次后打开
	FailureThreshold int
	// 半开状态下成功多少次后关闭
	SuccessThreshold int
	// 打开状态持续多久后进入半开
	Timeout time.Duration
	// 半开状态下同时在途的最大请求数
	HalfOpenMaxRequests int
	// IsFailure decides which errors count against the breaker. Errors it
	// rejects (e.g. a missing record) mean the dependency answered, so they
	// count as successes. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange is called with the breaker lock held; keep it short.
	OnStateChange func(from, to State)
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 3,
	}
}

type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu        sync.Mutex
	state     State
	since     time.Time
	failures  int
	successes int
	inFlight  int
	// gen changes on every transition
	gen uint64
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  StateClosed,
		since:  time.Now(),
	}
}

// Execute runs fn unless the breaker is open. ErrCircuitBreakerOpen is
// returned without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	t, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.release(t)
	if err != nil && cb.countsAsFailure(err) {
		cb.recordFailure()
	} else {
		cb.recordSuccess(t)
	}
	return err
}

// ticket remembers whether a call holds a half-open slot, and of which
// half-open window.
type ticket struct {
	trial bool
	gen   uint64
}

func (cb *CircuitBreaker) admit() (ticket, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance()
	switch cb.state {
	case StateOpen:
		return ticket{}, ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.inFlight >= cb.config.HalfOpenMaxRequests {
			return ticket{}, ErrCircuitBreakerOpen
		}
		cb.inFlight++
		return ticket{trial: true, gen: cb.gen}, nil
	}
	return ticket{gen: cb.gen}, nil
}

// release frees the half-open slot held by t. Slots of an earlier window
// were already dropped by setState.
func (cb *CircuitBreaker) release(t ticket) {
	if t.trial && t.gen == cb.gen && cb.inFlight > 0 {
		cb.inFlight--
	}
}

func (cb *CircuitBreaker) countsAsFailure(err error) bool {
	if cb.config.IsFailure == nil {
		return true
	}
	return cb.config.IsFailure(err)
}

// advance 打开超时后转入半开
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.now().Sub(cb.since) >= cb.config.Timeout {
		cb.setState(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	}
}

// recordSuccess only lets trial calls of the current half-open window close the
// breaker.
func (cb *CircuitBreaker) recordSuccess(t ticket) {
	cb.failures = 0
	if cb.state != StateHalfOpen || !t.trial || t.gen != cb.gen {
		return
	}
	cb.successes++
	if cb.successes >= cb.config.SuccessThreshold {
		cb.setState(StateClosed)
	}
}

// setState resets the per-state counters.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	cb.state = to
	cb.gen++
	cb.since = cb.now()
	cb.successes = 0
	cb.inFlight = 0
	if to == StateClosed {
		cb.failures = 0
	}
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}
