package firmware

import "errors"

// ErrNoSession is returned for Packet and End messages received while no
// transfer is open. Such messages belong to a unit further down the chain.
var ErrNoSession = errors.New("no firmware transfer in progress")
