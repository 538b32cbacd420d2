package main

import "fmt"

const (
	logMsgStarting     = "Starting magneto version %s with %s"
	logMsgProxyAddress = "Proxy address is %s"
	logMsgShuttingDown = "Shutting down"
)

func errBadPortFlag(port int) error {
	return fmt.Errorf("port %d is out of range 1-65535", port)
}
