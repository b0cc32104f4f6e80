package listeners

import (
	"log"
	"runtime/debug"
	"sync"

	"github.com/piraces/feedsync/pkg/metrics"
	"github.com/piraces/feedsync/pkg/new/domain/entity"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slices"
)

const defaultNumWorkers = 1

type ListenerSource interface {
	Listeners(kind feed.Kind) []entity.Listener
}

// Dispatcher hands every new id to the listeners registered for its kind.
// Every listener has its own unbounded queue drained by its own workers, so
// Dispatch never blocks and a slow or stuck listener only delays its own
// notifications. With a single worker per listener ids arrive in the order
// in which they were dispatched.
type Dispatcher struct {
	source     ListenerSource
	numWorkers int

	mutex  sync.Mutex
	queues map[feed.Kind]map[entity.Listener]*listenerQueue
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher which runs numWorkers workers for every
// registered listener.
func NewDispatcher(source ListenerSource, numWorkers int) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultNumWorkers
	}

	d := &Dispatcher{
		source:     source,
		numWorkers: numWorkers,
		queues:     make(map[feed.Kind]map[entity.Listener]*listenerQueue),
	}
	for _, kind := range feed.Kinds {
		d.queues[kind] = make(map[entity.Listener]*listenerQueue)
	}
	return d
}

func (d *Dispatcher) Dispatch(kind feed.Kind, id entity.ID) {
	current := d.source.Listeners(kind)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		log.Printf("[WARN] dispatcher is closed, dropping %s '%s'", kind, id)
		return
	}

	queues, ok := d.queues[kind]
	if !ok {
		log.Printf("[ERROR] no workers for the %s feed, dropping '%s'", kind, id)
		return
	}

	for _, listener := range current {
		q, ok := queues[listener]
		if !ok {
			q = d.startQueue(kind)
			queues[listener] = q
		}
		q.submit(task{listener: listener, id: id})
	}

	// Queues of removed listeners finish what was already submitted and
	// then stop their workers.
	for listener, q := range queues {
		if slices.Index(current, listener) < 0 {
			q.close()
			delete(queues, listener)
		}
	}
}

// Close waits until all queued invocations were executed and stops the
// workers. Ids dispatched after Close are dropped.
func (d *Dispatcher) Close() {
	d.mutex.Lock()
	d.closed = true
	for _, queues := range d.queues {
		for _, q := range queues {
			q.close()
		}
	}
	d.mutex.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) startQueue(kind feed.Kind) *listenerQueue {
	q := newListenerQueue(kind)

	d.wg.Add(d.numWorkers)
	for i := 0; i < d.numWorkers; i++ {
		go func() {
			defer d.wg.Done()
			q.work()
		}()
	}
	return q
}

type task struct {
	listener entity.Listener
	id       entity.ID
}

type listenerQueue struct {
	kind   feed.Kind
	mutex  sync.Mutex
	cond   *sync.Cond
	tasks  []task
	closed bool
}

func newListenerQueue(kind feed.Kind) *listenerQueue {
	q := &listenerQueue{kind: kind}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *listenerQueue) submit(t task) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.tasks = append(q.tasks, t)
	metrics.DispatchQueueLength.With(prometheus.Labels{"kind": q.kind.String()}).Inc()
	q.cond.Signal()
}

// close lets the workers exit once the queue is empty.
func (q *listenerQueue) close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *listenerQueue) work() {
	for {
		t, ok := q.next()
		if !ok {
			return
		}
		q.run(t)
	}
}

func (q *listenerQueue) next() (task, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for len(q.tasks) == 0 {
		if q.closed {
			return task{}, false
		}
		q.cond.Wait()
	}

	t := q.tasks[0]
	q.tasks[0] = task{}
	q.tasks = q.tasks[1:]
	metrics.DispatchQueueLength.With(prometheus.Labels{"kind": q.kind.String()}).Dec()
	return t, true
}

func (q *listenerQueue) run(t task) {
	if err := notify(t); err != nil {
		metrics.ListenerFailures.With(prometheus.Labels{"kind": q.kind.String()}).Inc()
		log.Printf("[ERROR] %v", err)
		return
	}
	metrics.DispatchedNotifications.With(prometheus.Labels{"kind": q.kind.String()}).Inc()
}

func notify(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &entity.ListenerError{
				Listener: t.listener,
				ID:       t.id,
				Err:      errors.Errorf("panic: %v\n%s", r, debug.Stack()),
			}
		}
	}()

	if err := entity.Notify(t.listener, t.id); err != nil {
		return &entity.ListenerError{Listener: t.listener, ID: t.id, Err: err}
	}
	return nil
}
