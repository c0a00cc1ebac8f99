package models

import "time"

// Priority orders jobs at dequeue time; lower runs first.
type Priority int

const (
	PriorityPremium Priority = 0
	PriorityFree    Priority = 1
)

// TradeJob is one follower's share of a signal.
type TradeJob struct {
	Priority   Priority
	Follower   FollowerConfig
	Signal     Signal
	EnqueuedAt time.Time
}

func NewTradeJob(sig Signal, follower FollowerConfig) TradeJob {
	return TradeJob{
		Priority:   follower.Priority(),
		Follower:   follower,
		Signal:     sig,
		EnqueuedAt: time.Now(),
	}
}
