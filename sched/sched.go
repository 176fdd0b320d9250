/*
Package sched implements the asynchronous master/worker evaluation scheduler
of spec §4.4 and its concurrency/resource model in spec §5.

The original system is a collection of MPI processes exchanging three
message tags (REQUEST, DATA, RESULTS) between one master and W workers. The
idiomatic Go rendering keeps one goroutine per worker and represents each
message tag as a typed channel send: a per-worker WorkUnit channel stands in
for REQUEST+DATA (a worker only ever has one outstanding request, so folding
the two wire messages into a single struct send is a faithful compression,
not a behavior change) and a per-worker Result channel stands in for
RESULTS. This gives every one of spec §4.4's ordering guarantees for free:
sourcing "worker src" literally means receiving on resultChans[src].

Evaluator is the caller-supplied function a worker goroutine calls for each
WorkUnit it receives — the out-of-scope "Model" collaborator of spec §1.
*/
package sched

import (
	"context"
	"reflect"
	"sync"
)

// Evaluator computes the result of one work unit on behalf of workerID.
// Implementations must not touch the scheduler's RNG stream or another
// worker's state (spec §5's shared-resource policy: workers must not
// consume from the shared RNG stream after initialization), and if they
// hold per-worker resources (e.g. one model.Adapter per worker, spec §5's
// "no shared filesystem paths between workers") they select on workerID.
type Evaluator func(ctx context.Context, workerID int, w WorkUnit) Result

// Scheduler owns W worker goroutines and the channels used to drive them.
type Scheduler struct {
	w                  int
	reqCh              []chan WorkUnit
	resCh              []chan Result
	wg                 sync.WaitGroup
	synchronousReceive bool
	rrCursor           int
}

// New launches W worker goroutines, each repeatedly calling eval for every
// WorkUnit it receives until it is sent a Stop unit. synchronousReceive
// selects the §4.4/§5 "synchronous_receive" discipline: when true, Run
// sources results in fixed round-robin order (worker 0, 1, ..., W-1, 0, ...)
// rather than first-arrived.
func New(ctx context.Context, w int, eval Evaluator, synchronousReceive bool) *Scheduler {
	if w < 1 {
		panic("sched: W < 1 (scheduler prerequisite error, spec §7 — caller must check before constructing)")
	}
	s := &Scheduler{
		w:                  w,
		reqCh:              make([]chan WorkUnit, w),
		resCh:              make([]chan Result, w),
		synchronousReceive: synchronousReceive,
	}
	for i := 0; i < w; i++ {
		s.reqCh[i] = make(chan WorkUnit, 1)
		s.resCh[i] = make(chan Result, 1)
		s.wg.Add(1)
		go s.runWorker(ctx, i, eval)
	}
	return s
}

func (s *Scheduler) runWorker(ctx context.Context, id int, eval Evaluator) {
	defer s.wg.Done()
	for req := range s.reqCh[id] {
		if req.Stop {
			return
		}
		res := eval(ctx, id, req)
		res.WorkerID = id
		res.Index = req.Index
		s.resCh[id] <- res
	}
}

// Stop closes every worker's request channel, which causes each worker
// goroutine to return after observing channel closure (the cooperative
// barrier of spec §5), and waits for all of them to exit.
func (s *Scheduler) Stop() {
	for i := 0; i < s.w; i++ {
		close(s.reqCh[i])
	}
	s.wg.Wait()
}

// NumWorkers returns W.
func (s *Scheduler) NumWorkers() int { return s.w }

// NextCandidate supplies the ith candidate work unit on demand; it is
// called with i in [0, total) in increasing order exactly once each, as the
// master primes and refills workers.
type NextCandidate func(i int) WorkUnit

// Assimilate is called once per received result, specifically
// assignments[src] rather than an arrival-order counter (spec §4.4,
// §9's off-by-one fix). It returns true to request early termination
// (equivalent to the user quit-sentinel check of spec §6/§7).
type Assimilate func(res Result) (quit bool)

/*
Run drives the master loop of spec §4.4 to completion over `total`
candidates, priming each worker with one work unit and refilling as results
arrive. It returns the number of candidates sent and the number of results
assimilated. quit is polled at the top of each outer iteration (the
sentinel-file check of spec §6); when it reports true, STOP_WORK is sent to
every worker and the loop exits without waiting for remaining in-flight
results, mirroring the cooperative cancellation contract of spec §4.4/§5.
Callers that need worker goroutines torn down afterward call Stop.
*/
func (s *Scheduler) Run(next NextCandidate, total int, assimilate Assimilate, quit func() bool) (sent, received int) {
	assignments := make([]int, s.w)
	stopped := make([]bool, s.w)
	stops := 0
	i := 0

	send := func(worker int) {
		wu := next(i)
		wu.Index = i
		assignments[worker] = i
		s.reqCh[worker] <- wu
		i++
		sent++
	}
	stopWorker := func(worker int) {
		s.reqCh[worker] <- WorkUnit{Stop: true}
		stopped[worker] = true
		stops++
	}

	for worker := 0; worker < s.w; worker++ {
		if i < total {
			send(worker)
		} else {
			stopWorker(worker)
		}
	}

	for stops < s.w {
		if quit != nil && quit() {
			for worker := 0; worker < s.w; worker++ {
				// any worker not yet stopped still has one outstanding
				// request in flight; its result lands in the buffered
				// resCh unread, after which it reads this STOP_WORK.
				if !stopped[worker] {
					stopWorker(worker)
				}
			}
			return sent, received
		}
		src, res := s.receive()
		res.Index = assignments[src]
		received++
		if assimilate != nil && assimilate(res) {
			return sent, received
		}
		if i < total {
			send(src)
		} else {
			stopWorker(src)
		}
	}
	return sent, received
}

/*
Batch processes exactly `total` candidates against the scheduler's W
workers without ever sending STOP_WORK, leaving every worker goroutine
blocked on its request channel (ready for the next Batch or Run call) once
all `total` results have been assimilated. This is the barrier-synchronized
phase primitive of spec §4.4/§5: APPSO calls Batch once per generation
(S candidates), parallel SA once per proposal (a single candidate); the
caller observing Batch's return is the barrier ("all workers have observed
the latest best-so-far before the next phase of candidate generation
starts"). Callers must eventually call Stop once the whole run is done.
*/
func (s *Scheduler) Batch(next NextCandidate, total int, assimilate Assimilate, quit func() bool) (sent, received int) {
	w := s.w
	if total < w {
		w = total
	}
	assignments := make([]int, s.w)
	i := 0

	send := func(worker int) {
		wu := next(i)
		wu.Index = i
		assignments[worker] = i
		s.reqCh[worker] <- wu
		i++
		sent++
	}

	for worker := 0; worker < w; worker++ {
		send(worker)
	}

	for received < total {
		if quit != nil && quit() {
			return sent, received
		}
		src, res := s.receive()
		res.Index = assignments[src]
		received++
		if assimilate != nil && assimilate(res) {
			return sent, received
		}
		if i < total {
			send(src)
		}
	}
	return sent, received
}

// receive sources the next available result, either from a fixed
// round-robin position (synchronous_receive) or from whichever worker
// channel is ready first (reflect.Select, since the channel count is only
// known at runtime).
func (s *Scheduler) receive() (src int, res Result) {
	if s.synchronousReceive {
		src = s.rrCursor
		s.rrCursor = (s.rrCursor + 1) % s.w
		res = <-s.resCh[src]
		return src, res
	}
	cases := make([]reflect.SelectCase, s.w)
	for i, ch := range s.resCh {
		cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
	}
	chosen, recv, _ := reflect.Select(cases)
	return chosen, recv.Interface().(Result)
}
