package errors

import (
	stderrors "errors"
	"fmt"
)

// CodeNoRoute is returned by a path-finding service which serviced the
// request but could not find a route.
const CodeNoRoute = 2201

// ServiceError is a structured error body returned by a PFS or MS.
type ServiceError struct {
	Status int
	Code   int
	Errors string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error: status %d, code %d: %s", e.Status, e.Code, e.Errors)
}

func (e *ServiceError) Kind() Kind { return KindServiceProtocol }

func AsServiceError(err error) (*ServiceError, bool) {
	var svc *ServiceError
	if stderrors.As(err, &svc) {
		return svc, true
	}
	return nil, false
}

// IsNoRoute distinguishes "no route" from other service failures.
func IsNoRoute(err error) bool {
	svc, ok := AsServiceError(err)
	return ok && svc.Code == CodeNoRoute
}
