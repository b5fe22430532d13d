package api

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"collabnest/realtime"
)

type publishJob struct {
	key     string
	room    string
	event   string
	payload any
	ticket  uint64
}

// lane is one worker's queue. Every key hashes onto a single lane, and jobs
// are delivered strictly in ticket order, so events for one task reach Redis
// in the order they were published even when some of them go inline.
type lane struct {
	jobs chan publishJob

	mu   sync.Mutex // numbers and enqueues a job as one step
	next uint64

	turnMu sync.Mutex
	turn   uint64
	cond   *sync.Cond
}

func newLane(buf int) *lane {
	l := &lane{jobs: make(chan publishJob, buf)}
	l.cond = sync.NewCond(&l.turnMu)
	return l
}

// deliverInTurn waits until every job numbered before j has been delivered.
func (l *lane) deliverInTurn(j publishJob, workerID int) {
	l.turnMu.Lock()
	for l.turn != j.ticket {
		l.cond.Wait()
	}
	l.turnMu.Unlock()

	deliver(j, workerID)

	l.turnMu.Lock()
	l.turn++
	l.cond.Broadcast()
	l.turnMu.Unlock()
}

var (
	once           sync.Once
	lanes          []*lane
	workerCount    int
	jobBuf         int
	publishTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalRedis    redis.UniversalClient
	globalSink     EventSink
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownEventPublisher stops worker goroutines and clears shared state. It is intended for tests.
func shutdownEventPublisher() {
	for _, l := range lanes {
		close(l.jobs)
	}
	lanes = nil

	workerWG.Wait()

	globalRedis = nil
	globalSink = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	publishTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initEventPublisher(rc redis.UniversalClient, sink EventSink, cfg PublisherConfig, logger *log.Logger) {
	once.Do(func() {
		if logger == nil {
			panic("Logger is not initialized")
		}
		globalRedis = rc
		globalSink = sink
		globalLog = logger

		workerCount = positiveOr(cfg.Workers, 8)
		jobBuf = positiveOr(cfg.Buffer, 1024)
		publishTimeout = cfg.PublishTimeout
		if publishTimeout <= 0 {
			publishTimeout = 10 * time.Second
		}
		handoffTimeout = cfg.HandoffTimeout

		perLane := positiveOr(jobBuf/workerCount, 1)
		lanes = make([]*lane, workerCount)
		for i := range lanes {
			lanes[i] = newLane(perLane)
			workerWG.Add(1)
			go worker(i, lanes[i])
		}
		globalLog.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, publishTimeout, handoffTimeout)
	})
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func worker(id int, l *lane) {
	defer workerWG.Done()
	for j := range l.jobs {
		l.deliverInTurn(j, id)
	}
}

func laneFor(key string) *lane {
	if len(lanes) == 0 {
		return nil
	}
	return lanes[xxhash.Sum64String(key)%uint64(len(lanes))]
}

// deliver publishes to the Redis room and mirrors to the sink. Failures are
// logged only; the write that produced the event has already succeeded.
func deliver(j publishJob, workerID int) {
	ctx, cancel := context.WithTimeout(bg, publishTimeout)
	defer cancel()

	if globalRedis != nil {
		if err := realtime.Publish(ctx, globalRedis, j.room, j.event, j.payload); err != nil {
			logPublishError(err, j, workerID, "redis")
		}
	}
	if globalSink != nil {
		if err := globalSink.Send(ctx, j.room, j.event, j.payload); err != nil {
			logPublishError(err, j, workerID, "queue")
		}
	}
}

func logPublishError(err error, j publishJob, workerID int, target string) {
	if globalLog == nil {
		return
	}
	globalLog.WithError(err).WithFields(log.Fields{
		"room":   j.room,
		"event":  j.event,
		"target": target,
		"worker": workerID,
	}).Error("publish failed")
}

// publish hands the event to the lane owning key, falling back to an inline
// publish when the lane stays full past the handoff timeout. The inline path
// still waits for jobs queued earlier on the same lane.
func publish(key, room, event string, payload any) {
	job := publishJob{key: key, room: room, event: event, payload: payload}
	l := laneFor(key)
	if l != nil && tryEnqueueJob(l, &job) {
		return
	}
	if globalLog != nil {
		globalLog.WithField("key", key).Warn("publish buffer saturated; publishing inline")
	}
	if l == nil {
		deliver(job, -1)
		return
	}
	l.deliverInTurn(job, -1)
}

// tryEnqueueJob numbers job and queues it on l. The ticket is consumed either
// way, so a caller that gets false must deliver the job through the lane.
func tryEnqueueJob(l *lane, job *publishJob) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	job.ticket = l.next
	l.next++

	if ok, closed := trySendNonBlocking(l.jobs, *job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(l.jobs, *job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan publishJob, job publishJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan publishJob, job publishJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
