package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adi-253/webchat/backend/internal/cloud"
	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// StepFunc runs one lifecycle tick and returns the state for the next one.
type StepFunc func(ctx context.Context, state models.LifecycleState) (models.LifecycleState, error)

// Orchestrator runs room lifecycles in-process with timers: wait, tick,
// repeat until the room is DELETED. A failed tick is retried a few times
// before the execution is abandoned, mirroring the state machine's retry.
type Orchestrator struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	step    StepFunc
	running map[string]bool

	// Retries and RetryDelay bound how a failing tick is retried.
	Retries    int
	RetryDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. Bind must be called before any
// room is created.
func NewOrchestrator(log logrus.FieldLogger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		log:        log,
		running:    make(map[string]bool),
		Retries:    3,
		RetryDelay: 2 * time.Second,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Bind sets the tick function.
func (o *Orchestrator) Bind(step StepFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.step = step
}

// StartRoomLifecycle starts the execution for one room.
func (o *Orchestrator) StartRoomLifecycle(ctx context.Context, state models.LifecycleState) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.step == nil {
		return "", errors.New("memory orchestrator: no lifecycle step bound")
	}
	if o.running[state.ID] {
		return "", fmt.Errorf("lifecycle for room %s: %w", state.ID, cloud.ErrAlreadyExists)
	}
	o.running[state.ID] = true

	o.wg.Add(1)
	go o.run(state, o.step)
	return "local:execution:room-" + state.ID, nil
}

// Stop cancels every pending execution and waits for in-flight ticks.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) run(state models.LifecycleState, step StepFunc) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.running, state.ID)
		o.mu.Unlock()
	}()

	log := o.log.WithField("room_id", state.ID)

	for state.State != models.RoomDeleted {
		if !o.sleep(time.Duration(state.WaitSeconds) * time.Second) {
			log.Info("Lifecycle execution cancelled")
			return
		}

		next, err := o.tick(state, step)
		if err != nil {
			log.WithError(err).Error("Lifecycle execution failed")
			return
		}
		state = next
	}
	log.Info("Lifecycle execution finished")
}

func (o *Orchestrator) tick(state models.LifecycleState, step StepFunc) (models.LifecycleState, error) {
	var err error
	for attempt := 0; attempt <= o.Retries; attempt++ {
		if attempt > 0 && !o.sleep(o.RetryDelay) {
			return state, o.ctx.Err()
		}
		var next models.LifecycleState
		if next, err = step(o.ctx, state); err == nil {
			return next, nil
		}
		o.log.WithFields(logrus.Fields{"room_id": state.ID, "attempt": attempt + 1}).WithError(err).Warn("Lifecycle tick failed")
	}
	return state, err
}

func (o *Orchestrator) sleep(d time.Duration) bool {
	if d <= 0 {
		return o.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-o.ctx.Done():
		return false
	}
}
