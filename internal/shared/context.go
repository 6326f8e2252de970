package shared

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

type sessionContextKey struct{}

// ErrMalformedAdminID reports a session bound to something other than a
// positive admin id.
var ErrMalformedAdminID = errors.New("session admin id malformed")

// ContextWithSession attaches the admin session loaded by the session
// middleware.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the attached session or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// SessionAdminID returns the admin the request's session is bound to.
// A missing session or an unbound one yields ok=false and a nil error; a
// bound value that is not a positive id yields ErrMalformedAdminID.
func SessionAdminID(ctx context.Context) (id int64, ok bool, err error) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return 0, false, nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false, nil
	}
	id, err = strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, ErrMalformedAdminID
	}
	return id, true, nil
}
