package sync

import "errors"

// ErrAccountNotConnected indicates that no calendar account exists for the
// requested id, or that no access token is on file. The caller should prompt
// the practitioner to reconnect their calendar account.
var ErrAccountNotConnected = errors.New("calendar account not connected")

// ErrSyncDisabled indicates that the account exists but synchronization is
// switched off. This is not an anomaly, just a refused run.
var ErrSyncDisabled = errors.New("calendar synchronization is disabled")
