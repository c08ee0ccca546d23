package repository

import "errors"

// ErrConnection is returned when no database connection could be acquired.
var ErrConnection = errors.New("repository: connection unavailable")
