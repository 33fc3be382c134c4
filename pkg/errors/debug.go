package errors

import (
	"errors"
	"fmt"
)

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	HTTPStatus int `json:"http_status,omitempty"`
}

// statusCarrier is implemented by errors that captured an upstream HTTP status.
type statusCarrier interface {
	StatusCode() int
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var sc statusCarrier
	if errors.As(err, &sc) {
		d.HTTPStatus = sc.StatusCode()
	}

	return d
}
