package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

func TestTextStream_Collect(t *testing.T) {
	s := NewTextStream(context.Background(), 2)
	go func() {
		for _, f := range []string{"a", "b", "c", "d"} {
			if err := s.send(f); err != nil {
				return
			}
		}
		s.finish(nil)
	}()

	text, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abcd", text)

	// 结束后 Next 始终返回 false
	_, ok := s.Next(context.Background())
	assert.False(t, ok)
	_, ok = s.Next(context.Background())
	assert.False(t, ok)
}

func TestTextStream_CancelStopsProducer(t *testing.T) {
	s := NewTextStream(context.Background(), 1)
	producerDone := make(chan error, 1)
	go func() {
		for {
			if err := s.send("x"); err != nil {
				s.finish(err)
				producerDone <- err
				return
			}
		}
	}()

	_, ok := s.Next(context.Background())
	require.True(t, ok)
	s.Cancel()
	s.Cancel()

	select {
	case err := <-producerDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("producer did not stop")
	}
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestTextStream_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewTextStream(ctx, 1)
	cancel()
	assert.ErrorIs(t, s.send("x"), context.Canceled)
}

func TestTextStream_NextContextDone(t *testing.T) {
	s := NewTextStream(context.Background(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := s.Next(ctx)
	assert.False(t, ok)
}

func TestStaticStream(t *testing.T) {
	resp := &domainRAG.QueryResponse{Status: domainRAG.StatusEmpty}
	s := NewStaticStream("only", resp)
	text, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "only", text)
	assert.Same(t, resp, s.Response())

	empty := NewStaticStream("", nil)
	text, err = empty.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, text)
}
