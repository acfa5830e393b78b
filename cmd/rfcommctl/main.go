package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/config"
	"github.com/rigado/rfcomm/engine"
	"github.com/rigado/rfcomm/session"
	"github.com/rigado/rfcomm/transport/stream"
)

var (
	eng  *engine.Engine
	conf config.Config
)

func main() {
	app := cli.NewApp()

	app.Name = "rfcommctl"
	app.Usage = "Run RFCOMM channels over a TCP or UART lower layer"
	app.Version = "0.0.1"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{flgConfig, flgDebug, flgQuiet}

	app.Commands = []cli.Command{
		{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "Accept one lower layer connection and echo data on a server channel",
			Action:  listen,
			Flags:   []cli.Flag{flgTCP, flgSerial, flgBaud, flgChannel, flgLevel, flgMTU, flgTimeout},
		},
		{
			Name:    "dial",
			Aliases: []string{"d"},
			Usage:   "Open a channel, send stdin lines and print what comes back",
			Action:  dial,
			Flags:   []cli.Flag{flgTCP, flgSerial, flgBaud, flgChannel, flgLevel, flgMTU, flgTimeout},
		},
	}

	app.Before = setup
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	if eng != nil {
		return nil
	}

	conf = config.Default()
	if name := c.String("config"); name != "" {
		var err error
		if conf, err = config.NewFile(name).Load(); err != nil {
			return errors.Wrap(err, "can't load config")
		}
	}

	switch {
	case c.Bool("quiet"):
		rfcomm.SetLogger(rfcomm.NopLogger())
	case c.Bool("debug"):
		if err := rfcomm.SetLogLevelMax(); err != nil {
			return errors.Wrap(err, "can't set log level")
		}
	case conf.LogLevel != "":
		if err := rfcomm.SetLogLevel(conf.LogLevel); err != nil {
			return errors.Wrap(err, "can't set log level")
		}
	}

	e, err := engine.New(conf.Options()...)
	if err != nil {
		return errors.Wrap(err, "can't create engine")
	}
	eng = e
	return nil
}

// lowerLayer opens the transport named by the command flags. A listening
// TCP endpoint waits for a single peer.
func lowerLayer(c *cli.Context, listen bool) (*stream.Stream, error) {
	mtu := rfcomm.DefaultL2CAPMTU
	switch {
	case c.String("serial") != "":
		return stream.OpenSerial(c.String("serial"), c.Uint("baud"), mtu)

	case c.String("tcp") != "" && listen:
		l, err := net.Listen("tcp", c.String("tcp"))
		if err != nil {
			return nil, errors.Wrap(err, "can't listen")
		}
		defer l.Close()
		fmt.Printf("Waiting for a connection on %s...\n", l.Addr())
		conn, err := l.Accept()
		if err != nil {
			return nil, errors.Wrap(err, "can't accept")
		}
		return stream.FromConn(conn, c.Duration("tmo"), mtu), nil

	case c.String("tcp") != "":
		return stream.Dial(c.String("tcp"), c.Duration("tmo"), mtu)

	default:
		return nil, fmt.Errorf("one of --tcp or --serial is required")
	}
}

func channelFlag(c *cli.Context) (uint8, error) {
	ch := c.Uint("channel")
	if ch < rfcomm.MinChannel || ch > rfcomm.MaxChannel {
		return 0, errors.Wrapf(rfcomm.ErrInvalidChannel, "channel %d", ch)
	}
	return uint8(ch), nil
}

func echoServer(level rfcomm.SecurityLevel, mtu int) session.AcceptPolicy {
	return func(req session.Request) (session.Acceptance, bool) {
		fmt.Printf("Accepting channel %d (dlci %d, peer mtu %d)\n", req.Channel, req.DLCI, req.MTU)
		return session.Acceptance{
			Security: level,
			MTU:      mtu,
			Handler: session.HandlerFuncs{
				OnConnected:    func(d *session.DLC) { fmt.Printf("%s connected, mtu %d\n", d, d.MTU()) },
				OnDisconnected: func(d *session.DLC) { fmt.Printf("%s disconnected\n", d) },
				OnReceived: func(d *session.DLC, b []byte) {
					fmt.Printf("%s: %q\n", d, b)
					if err := d.Send(b); err != nil {
						fmt.Printf("%s: can't echo: %v\n", d, err)
					}
				},
			},
		}, true
	}
}

func listen(c *cli.Context) error {
	ch, err := channelFlag(c)
	if err != nil {
		return err
	}
	if err := eng.RegisterServer(ch, echoServer(rfcomm.SecurityLevel(c.Uint("security")), c.Int("mtu"))); err != nil {
		return errors.Wrap(err, "can't register server")
	}
	for _, srv := range conf.Servers {
		if srv.Channel == ch {
			continue
		}
		if err := eng.RegisterServer(srv.Channel, echoServer(srv.Security, srv.MTU)); err != nil {
			return errors.Wrapf(err, "can't register server %d", srv.Channel)
		}
	}

	t, err := lowerLayer(c, true)
	if err != nil {
		return err
	}
	s, err := eng.Accept(t)
	if err != nil {
		return err
	}

	select {
	case <-s.Done():
		fmt.Println("Multiplexer closed")
	case <-sigs():
		fmt.Println("\n(Canceled)")
		t.Disconnect()
	}
	return nil
}

func dial(c *cli.Context) error {
	ch, err := channelFlag(c)
	if err != nil {
		return err
	}
	t, err := lowerLayer(c, false)
	if err != nil {
		return err
	}

	up := make(chan struct{})
	down := make(chan struct{})
	d, err := eng.Open(t, ch, rfcomm.SecurityLevel(c.Uint("security")), c.Int("mtu"), session.HandlerFuncs{
		OnConnected:    func(*session.DLC) { close(up) },
		OnDisconnected: func(*session.DLC) { close(down) },
		OnReceived:     func(_ *session.DLC, b []byte) { fmt.Printf("< %s\n", b) },
	})
	if err != nil {
		return errors.Wrap(err, "can't open channel")
	}

	select {
	case <-up:
		fmt.Printf("%s connected, mtu %d\n", d, d.MTU())
	case <-down:
		return errors.Errorf("channel %d refused", ch)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	interrupt := sigs()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return closeAndWait(d, down)
			}
			if err := send(d, []byte(line)); err != nil {
				return err
			}
		case <-interrupt:
			fmt.Println("\n(Canceled)")
			return closeAndWait(d, down)
		case <-down:
			fmt.Println("Channel closed by peer")
			return nil
		}
	}
}

// send retries while the queue is full.
func send(d *session.DLC, b []byte) error {
	for {
		err := d.Send(b)
		if !rfcomm.IsRetryable(err) {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func closeAndWait(d *session.DLC, down chan struct{}) error {
	if err := d.Close(); err != nil {
		return err
	}
	select {
	case <-down:
	case <-time.After(rfcomm.DefaultDiscTimeout):
	}
	// Give the idle timer a chance to close the multiplexer.
	select {
	case <-d.Session().Done():
	case <-time.After(2 * time.Duration(conf.IdleTimeout)):
	}
	return nil
}

func sigs() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}
