package sessionwatch

import (
	"errors"

	"github.com/MrEthical07/sessionwatch/store"
	"github.com/MrEthical07/sessionwatch/watchdog"
)

var (
	// ErrStoreUnavailable is returned when the session store cannot be written.
	ErrStoreUnavailable = store.ErrStoreUnavailable
	// ErrInvalidPrincipal is returned by SignIn for a principal without an access token.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrNoSession is returned when an operation needs a live session and none exists.
	ErrNoSession = watchdog.ErrNoSession
	// ErrNotWarning is returned by Tab.Extend while no expiry prompt is showing.
	ErrNotWarning = watchdog.ErrNotWarning
	// ErrTerminated is returned once a tab's session was force-ended.
	ErrTerminated = watchdog.ErrTerminated
	// ErrTabClosed is returned by operations on a closed tab.
	ErrTabClosed = errors.New("tab closed")
	// ErrMonitorClosed is returned by operations on a closed monitor.
	ErrMonitorClosed = errors.New("monitor closed")
	// ErrMissingPrompter is returned by OpenTab without a prompter.
	ErrMissingPrompter = errors.New("tab prompter required")
	// ErrMissingNavigator is returned by OpenTab without a navigator.
	ErrMissingNavigator = errors.New("tab navigator required")
)
