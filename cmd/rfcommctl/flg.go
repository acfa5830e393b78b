package main

import (
	"time"

	"github.com/urfave/cli"
)

var (
	flgConfig  = cli.StringFlag{Name: "config, c", Usage: "JSON engine configuration file"}
	flgDebug   = cli.BoolFlag{Name: "debug", Usage: "Log every frame"}
	flgQuiet   = cli.BoolFlag{Name: "quiet, q", Usage: "Discard log output"}
	flgTCP     = cli.StringFlag{Name: "tcp", Usage: "Lower layer over TCP, host:port"}
	flgSerial  = cli.StringFlag{Name: "serial", Usage: "Lower layer over a UART, device path"}
	flgBaud    = cli.UintFlag{Name: "baud", Value: 115200, Usage: "UART baud rate"}
	flgChannel = cli.UintFlag{Name: "channel, n", Value: 1, Usage: "Server channel 1..30"}
	flgMTU     = cli.IntFlag{Name: "mtu, m", Usage: "Largest frame payload, 0 for the session maximum"}
	flgLevel   = cli.UintFlag{Name: "security, s", Usage: "Required security level 0..4"}
	flgTimeout = cli.DurationFlag{Name: "tmo, t", Value: time.Second * 5, Usage: "Lower layer read/write timeout"}
)
