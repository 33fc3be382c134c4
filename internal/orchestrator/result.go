package orchestrator

import (
	"github.com/angelmondragon/analytics-dashboard/internal/query"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition follows this status.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Result is one state of a widget query stream.
type Result struct {
	Status     Status      `json:"status"`
	Rows       []query.Row `json:"rows"`
	Error      *ErrorInfo  `json:"error,omitempty"`
	Key        string      `json:"key,omitempty"`
	Generation uint64      `json:"generation"`
	Attempt    int         `json:"attempt"`
}

// ErrorInfo describes a terminal failure. Transient marks failures where no
// response was received.
type ErrorInfo struct {
	Code       pkgerrors.Code `json:"code"`
	Message    string         `json:"message"`
	Detail     string         `json:"detail,omitempty"`
	Transient  bool           `json:"transient"`
	Attempts   int            `json:"attempts"`
	HTTPStatus int            `json:"http_status,omitempty"`

	cause error
}

func (e *ErrorInfo) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func (e *ErrorInfo) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func newErrorInfo(err error, attempts int) *ErrorInfo {
	code := classify(err)
	meta := pkgerrors.MetadataFor(code)
	dump := pkgerrors.Dump(err)
	return &ErrorInfo{
		Code:       code,
		Message:    meta.PublicMessage,
		Detail:     dump.TopMessage,
		Transient:  code == pkgerrors.CodeNetwork,
		Attempts:   attempts,
		HTTPStatus: dump.HTTPStatus,
		cause:      err,
	}
}

// classify maps a fetch failure to its error code. Untyped errors carry no
// response, so they count as network failures.
func classify(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return pkgerrors.CodeNetwork
}

// Last drains a stream and returns its final state. ok is false when the
// stream closed without reaching a terminal state (cancelled or superseded).
func Last(stream <-chan Result) (last Result, ok bool) {
	for r := range stream {
		last = r
	}
	return last, last.Status.Terminal()
}
