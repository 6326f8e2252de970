package shared

import "errors"

// ErrSessionStore indicates the session backend failed.
var ErrSessionStore = errors.New("session store unavailable")

// ErrCacheInvalidation indicates a change was stored but cached access
// decisions could not be dropped. Callers should retry the change.
var ErrCacheInvalidation = errors.New("cached access not invalidated")
