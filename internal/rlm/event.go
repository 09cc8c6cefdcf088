package rlm

import "github.com/rlmlabs/rlmreview/internal/domain"

// EventType enumerates the closed set of events a Controller emits.
type EventType string

const (
	EventStart     EventType = "start"
	EventIteration EventType = "iteration"
	EventBlock     EventType = "block"
	EventError     EventType = "error"
	EventEnd       EventType = "end"
)

// Event is one item on the channel Controller.Ask returns. Only the fields
// relevant to Type are populated.
type Event struct {
	Type      EventType            `json:"type"`
	ReviewID  string               `json:"reviewId"`
	Iteration *domain.Iteration    `json:"iteration,omitempty"`
	Block     *domain.AnswerBlock  `json:"block,omitempty"`
	Error     string               `json:"error,omitempty"`
	Status    domain.SessionStatus `json:"status,omitempty"`
}
