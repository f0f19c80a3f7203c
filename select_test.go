package csp

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSelect_ResolvesImmediatelyReadyCandidate(t *testing.T) {
	chA := testChannel[int]("sel-a")
	chB := testChannel[int]("sel-b")
	wf := chA.WriteAsync(10)

	res, err := Select(context.Background(), []Request{ReadReq(chA), ReadReq(chB)})
	require.NoError(t, err)
	if diff := cmp.Diff(SelectResult{Index: 0, Value: 10}, res); diff != "" {
		t.Fatalf("select result mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, wf.Await(context.Background()))
}

func TestSelect_WaitsThenResolvesWhenOneArrives(t *testing.T) {
	chA := testChannel[int]("sel-c")
	chB := testChannel[int]("sel-d")

	go func() {
		time.Sleep(20 * time.Millisecond)
		chB.WriteAsync(77)
	}()

	res, err := Select(context.Background(), []Request{ReadReq(chA), ReadReq(chB)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, 77, OutcomeValue[int](res))
}

func TestSelect_LoserChannelStaysUsable(t *testing.T) {
	chA := testChannel[int]("sel-e")
	chB := testChannel[int]("sel-f")
	chA.WriteAsync(1)
	chB.WriteAsync(2)

	res, err := Select(context.Background(), []Request{ReadReq(chA), ReadReq(chB)})
	require.NoError(t, err)

	var loser *Channel[int]
	if res.Index == 0 {
		loser = chB
	} else {
		loser = chA
	}
	v, err := loser.Read(context.Background(), WithImmediate())
	require.NoError(t, err)
	assert.Contains(t, []int{1, 2}, v)
}

func TestSelect_ContextCanceledWithNoCandidateReady(t *testing.T) {
	chA := testChannel[int]("sel-g")
	chB := testChannel[int]("sel-h")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()

	_, err := Select(ctx, []Request{ReadReq(chA), ReadReq(chB)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSelect_WriteCandidate(t *testing.T) {
	ch := testChannel[string]("sel-i")
	rf := ch.ReadAsync()

	res, err := Select(context.Background(), []Request{WriteReq(ch, "payload")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)

	v, err := rf.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
}

func TestSelector_FairPriorityAlternatesWinners(t *testing.T) {
	chA := testChannel[int]("sel-fair-a")
	chB := testChannel[int]("sel-fair-b")
	sel := NewSelector()

	for round := 0; round < 4; round++ {
		chA.WriteAsync(100 + round)
		chB.WriteAsync(200 + round)

		res, err := sel.Select(context.Background(), []Request{ReadReq(chA), ReadReq(chB)}, WithPriority(PriorityFair))
		require.NoError(t, err)

		wantIdx := round % 2
		require.Equal(t, wantIdx, res.Index, "round %d", round)

		loser := chB
		if wantIdx == 1 {
			loser = chA
		}
		_, err = loser.Read(context.Background(), WithImmediate())
		require.NoError(t, err)
	}
}

func TestReadAny_WriteAny(t *testing.T) {
	chA := testChannel[int]("any-a", WithCapacity(1))
	chB := testChannel[int]("any-b", WithCapacity(1))

	idx, err := WriteAny(context.Background(), 42, chA, chB)
	require.NoError(t, err)
	assert.Contains(t, []int{0, 1}, idx)

	var chans []*Channel[int]
	if idx == 0 {
		chans = []*Channel[int]{chA}
	} else {
		chans = []*Channel[int]{chB}
	}
	v, winner, err := ReadAny(context.Background(), chans...)
	require.NoError(t, err)
	assert.Equal(t, 0, winner)
	assert.Equal(t, 42, v)
}

func TestSelect_ManyGoroutinesRaceToOneChannel(t *testing.T) {
	chs := make([]*Channel[int], 5)
	for i := range chs {
		chs[i] = testChannel[int]("sel-race")
	}
	reqs := make([]Request, len(chs))
	for i, c := range chs {
		reqs[i] = ReadReq(c)
	}

	var g errgroup.Group
	results := make(chan SelectResult, 10)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			res, err := Select(context.Background(), reqs)
			if err != nil {
				return err
			}
			results <- res
			return nil
		})
	}
	for _, c := range chs {
		c := c
		g.Go(func() error {
			for i := 0; i < 2; i++ {
				if err := c.Write(context.Background(), 1); err != nil {
					return err
				}
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	close(results)
	count := 0
	for range results {
		count++
	}
	assert.Equal(t, 10, count)
}
