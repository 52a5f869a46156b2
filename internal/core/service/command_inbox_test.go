package service

import (
	"testing"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxNewerSupersedesSamePath(t *testing.T) {
	b := NewInbox(4)
	b.Push(domain.SetCurrent{Amps: 10})
	b.Push(domain.SetCurrent{Amps: 16})

	drained := b.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, domain.SetCurrent{Amps: 16}, drained[0])
}

func TestInboxDropsNewestWhenFull(t *testing.T) {
	b := NewInbox(2)
	b.Push(domain.SetCurrent{Amps: 10})
	b.Push(domain.SetStartStop{Raw: 1})
	b.Push(domain.SetMode{Raw: "auto"}) // queue full of distinct paths, dropped

	drained := b.Drain()
	require.Len(t, drained, 2)
}

func TestInboxDrainEmptiesQueue(t *testing.T) {
	b := NewInbox(4)
	b.Push(domain.SetStartStop{Raw: 1})
	b.Drain()
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Drain())
}
