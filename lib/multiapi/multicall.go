package multiapi

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var ErrNoQuorum = errors.New("quorum of endpoints not reached")

var disabledMultiAPI int32

func DisableMultiAPI() {
	atomic.StoreInt32(&disabledMultiAPI, 1)
}

func EnableMultiAPI() {
	atomic.StoreInt32(&disabledMultiAPI, 0)
}

func MultiApiDisabled() bool {
	return atomic.LoadInt32(&disabledMultiAPI) != 0
}

type multiCallInterimResult[T any] struct {
	ret      T
	err      error
	endpoint string
}

func callRetArg(ret []*MultiCallRet) (*MultiCallRet, error) {
	switch len(ret) {
	case 0:
		return nil, nil
	case 1:
		return ret[0], nil
	}
	return nil, errors.New("wrong number of arguments")
}

func callFirst[T any](mapi MultiAPI, funName string, apiret *MultiCallRet, call func(Node) (T, error)) (T, error) {
	rnd := rand.Int() % 10000
	debugf("+++++++++++ multiCall %d: '%v' - calling first endpoint", rnd, funName)
	st := time.Now()

	ret, err := call(mapi[0].node)

	apiret.Endpoint = mapi[0].endpoint
	apiret.Duration = time.Since(st)
	debugf("+++++++++++ multiCall %d: '%v' finished '%v', %v err = '%v'",
		rnd, funName, apiret.Endpoint, apiret.Duration, err)
	return ret, err
}

// multiCall calls all endpoints in parallel and returns the first result without error.
// If all endpoints return error, the last one is returned
func multiCall[T any](mapi MultiAPI, funName string, retEndpoint *MultiCallRet, call func(Node) (T, error)) (T, error) {
	var zero T
	if len(mapi) == 0 {
		return zero, errors.New("empty MultiAPI")
	}
	var apiret MultiCallRet
	if len(mapi) == 1 || MultiApiDisabled() {
		ret, err := callFirst(mapi, funName, &apiret, call)
		if retEndpoint != nil {
			*retEndpoint = apiret
		}
		return ret, err
	}

	rnd := rand.Int() % 10000
	debugf("+++++++++++ multiCall %d: '%v'", rnd, funName)

	started := time.Now()
	chInterimResult := make(chan *multiCallInterimResult[T])
	var wg sync.WaitGroup
	for i := range mapi {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := call(mapi[idx].node)
			chInterimResult <- &multiCallInterimResult[T]{
				ret:      res,
				err:      err,
				endpoint: mapi[idx].endpoint}
		}(i)
	}
	// each node has timeout, all goroutines finish anyway
	go func() {
		wg.Wait()
		close(chInterimResult)
	}()

	chResult := make(chan *multiCallInterimResult[T], 1)
	go func() {
		var res, last *multiCallInterimResult[T]
		var noerr bool
		// reading all results to make all goroutines finish
		for res = range chInterimResult {
			last = res
			if !noerr && res.err == nil {
				noerr = true
				chResult <- res
			}
		}
		if !noerr {
			chResult <- last
		}
	}()
	result := <-chResult
	apiret.Endpoint = result.endpoint
	apiret.Duration = time.Since(started)
	if retEndpoint != nil {
		*retEndpoint = apiret
	}
	debugf("+++++++++++ multiCall %d: %v finished '%v', %v err = '%v'",
		rnd, funName, apiret.Endpoint, apiret.Duration, result.err)
	return result.ret, result.err
}

// quorumCall asks every endpoint and returns the answer given by majority of them
func quorumCall[T any](ctx context.Context, mapi MultiAPI, funName string, retEndpoint *MultiCallRet, call func(Node) (T, error)) (T, error) {
	var zero T
	if len(mapi) == 0 {
		return zero, errors.New("empty MultiAPI")
	}
	started := time.Now()
	results := make([]multiCallInterimResult[T], len(mapi))
	g, _ := errgroup.WithContext(ctx)
	for i := range mapi {
		idx := i
		g.Go(func() error {
			res, err := call(mapi[idx].node)
			results[idx] = multiCallInterimResult[T]{ret: res, err: err, endpoint: mapi[idx].endpoint}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	votes := make(map[string][]int)
	var lastErr error
	for i := range results {
		if results[i].err != nil {
			lastErr = results[i].err
			continue
		}
		key := fmt.Sprintf("%v", results[i].ret)
		votes[key] = append(votes[key], i)
	}
	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(votes[keys[i]]) > len(votes[keys[j]]) })

	if len(keys) == 0 || len(votes[keys[0]]) <= len(mapi)/2 {
		debugf("+++++++++++ quorumCall '%v': no majority among %d endpoints, %d answers", funName, len(mapi), len(keys))
		if lastErr != nil {
			return zero, errors.Wrap(ErrNoQuorum, lastErr.Error())
		}
		return zero, ErrNoQuorum
	}
	winner := results[votes[keys[0]][0]]
	if retEndpoint != nil {
		*retEndpoint = MultiCallRet{
			Endpoint: winner.endpoint,
			Duration: time.Since(started),
		}
	}
	debugf("+++++++++++ quorumCall '%v': %d of %d endpoints agree", funName, len(votes[keys[0]]), len(mapi))
	return winner.ret, nil
}
