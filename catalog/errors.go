package catalog

import (
	"fmt"
	"strings"
)

// TransportError means the API could not be queried at all or answered
// outside the GraphQL protocol: network failures, non-200 statuses and
// undecodable bodies.
type TransportError struct {
	StatusCode int // 0 when the request never completed
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unable to query github api err:%v", e.Err)
	}
	return fmt.Sprintf("unexpected github api response status:%d body:%q", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// QueryError means the API answered with a well-formed GraphQL response
// carrying one or more errors, such as an invalid token or a malformed
// query.
type QueryError struct {
	Messages []string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("github api query failed err:%s", strings.Join(e.Messages, "; "))
}
