package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusSkipped is the neutral outcome of a safety abort.
	StatusSkipped Status = "skipped"
)

// DealData is the broker-side detail of the executed deal.
type DealData struct {
	Profit     float64 `json:"profit"`
	Swap       float64 `json:"swap"`
	Commission float64 `json:"commission"`
	Fee        float64 `json:"fee"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	Comment    string  `json:"comment"`
}

// TradeResult is the outcome of one TradeJob.
type TradeResult struct {
	AccountID     string        `json:"accountId"`
	Status        Status        `json:"status"`
	ExecutionTime time.Duration `json:"-"`
	DealID        int64         `json:"dealId"`
	Message       string        `json:"message"`
	Price         float64       `json:"price"`
	Volume        float64       `json:"volume"`
	Profit        float64       `json:"profit"`
	Action        Action        `json:"type"`
	DealData      *DealData     `json:"dealData,omitempty"`
}

func (r TradeResult) Success() bool { return r.Status == StatusSuccess }

func (r TradeResult) MarshalJSON() ([]byte, error) {
	type plain TradeResult
	return json.Marshal(struct {
		plain
		ExecutionTime string `json:"executionTime"`
	}{
		plain:         plain(r),
		ExecutionTime: fmt.Sprintf("%.3fs", r.ExecutionTime.Seconds()),
	})
}

// ErrorKind classifies why a job did not succeed.
type ErrorKind string

const (
	ErrKindInit     ErrorKind = "init"
	ErrKindLogin    ErrorKind = "login"
	ErrKindLoopback ErrorKind = "loopback"
	ErrKindSymbol   ErrorKind = "symbol"
	ErrKindMargin   ErrorKind = "margin"
	ErrKindTick     ErrorKind = "tick"
	ErrKindSend     ErrorKind = "send"
	ErrKindResolve  ErrorKind = "resolve"
	ErrKindAbort    ErrorKind = "abort"
	ErrKindLag      ErrorKind = "lag"
	ErrKindBusy     ErrorKind = "busy"
	ErrKindInternal ErrorKind = "internal"
)

// Neutral kinds are safety aborts rather than failures.
func (k ErrorKind) Neutral() bool {
	switch k {
	case ErrKindLoopback, ErrKindMargin, ErrKindAbort, ErrKindLag:
		return true
	}
	return false
}

// TradeError is the typed failure of a job step. Message is user facing.
type TradeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewTradeError(kind ErrorKind, msg string, err error) *TradeError {
	return &TradeError{Kind: kind, Message: msg, Err: err}
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *TradeError) Unwrap() error { return e.Err }

// ExecutionReport ties a result to the signal and follower that produced it.
type ExecutionReport struct {
	MasterID     string      `json:"masterId"`
	MasterTicket int64       `json:"masterTicket"`
	FollowerID   string      `json:"followerId"`
	Login        int64       `json:"login"`
	Symbol       string      `json:"symbol"`
	Result       TradeResult `json:"result"`
	At           time.Time   `json:"at"`
}

func NewExecutionReport(job TradeJob, res TradeResult) ExecutionReport {
	return ExecutionReport{
		MasterID:     job.Signal.MasterID,
		MasterTicket: job.Signal.Ticket,
		FollowerID:   job.Follower.FollowerID,
		Login:        job.Follower.Login,
		Symbol:       job.Signal.Symbol,
		Result:       res,
		At:           time.Now().UTC(),
	}
}
