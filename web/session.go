package web

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"net/http"
)

const UserIdHeader = "X-User-Id"

// SessionProvider determines the logged-in user of a request. A nil ID without error means nobody is logged in.
type SessionProvider interface {
	UserID(request *http.Request) (*uuid.UUID, error)
}

// HeaderSessionProvider takes the user from a header set by an authenticating proxy in front of this service.
type HeaderSessionProvider struct{}

func (HeaderSessionProvider) UserID(request *http.Request) (*uuid.UUID, error) {
	value := request.Header.Get(UserIdHeader)
	if value == "" {
		return nil, nil
	}

	userID, err := uuid.Parse(value)
	if err != nil {
		return nil, errors.Wrapf(err, "Invalid user ID in header %s", UserIdHeader)
	}
	return &userID, nil
}
