package scheduler

import "errors"

// ErrNotArmed is returned when a next fire time is requested from an idle scheduler.
var ErrNotArmed = errors.New("scheduler: not armed")
