/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ipfixcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// datagram pairs one received IPFIX message with the source address it
// arrived from, since the exporter key is (observation domain id, source
// IP), not just the observation domain id carried in the message itself.
type datagram struct {
	payload []byte
	source  net.IP
}

// UDPPacketBufferSize bounds a single read from the UDP socket. IPFIX
// messages are capped by the 16-bit Message Header length field, but path
// MTU fragmentation makes arbitrarily large UDP datagrams unreliable in
// practice, so exporters are expected to stay well under it.
var UDPPacketBufferSize = 16384

// UDPChannelBufferSize is how many received datagrams may queue between the
// socket reader goroutine and Collector.Serve before the reader blocks.
var UDPChannelBufferSize = 64

// UDPListener receives IPFIX datagrams over UDP, per RFC 7011 section 10.2.
// SO_REUSEPORT is set so multiple listener instances can share one bind
// address across goroutines or processes.
type UDPListener struct {
	bindAddr string
	datagramCh chan datagram

	conn net.PacketConn
}

func NewUDPListener(bindAddr string) *UDPListener {
	return &UDPListener{bindAddr: bindAddr, datagramCh: make(chan datagram, UDPChannelBufferSize)}
}

func (l *UDPListener) Listen(ctx context.Context) error {
	log := FromContext(ctx)
	defer close(l.datagramCh)

	listenConfig := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if ctrlErr := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			}); ctrlErr != nil {
				return ctrlErr
			}
			return sockErr
		},
	}

	conn, err := listenConfig.ListenPacket(ctx, "udp", l.bindAddr)
	if err != nil {
		log.Error(err, "failed to bind UDP listener", "addr", l.bindAddr)
		return err
	}
	l.conn = conn
	defer l.conn.Close()

	errCh := make(chan error, 1)
	go func() {
		buffer := make([]byte, UDPPacketBufferSize)
		for {
			n, addr, err := l.conn.ReadFrom(buffer)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				ErrorsTotal.Inc()
				errCh <- err
				return
			}
			UDPPacketsTotal.Inc()
			UDPPacketBytes.Add(float64(n))

			payload := make([]byte, n)
			copy(payload, buffer[:n])
			l.datagramCh <- datagram{payload: payload, source: udpSourceIP(addr)}
		}
	}()

	log.Info("started UDP listener", "addr", l.bindAddr)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info("shutting down UDP listener", "addr", l.bindAddr)
	return nil
}

func udpSourceIP(addr net.Addr) net.IP {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP
	}
	return nil
}

func (l *UDPListener) messages() <-chan datagram {
	return l.datagramCh
}

// ipfixMessageHeaderLength is the fixed Message Header length, RFC 7011
// section 3.1.
const ipfixMessageHeaderLength = 16

// TCPChannelBufferSize is how many reassembled messages may queue across all
// connections before a session's reader blocks.
var TCPChannelBufferSize = 32

// TCPListener receives IPFIX messages over TCP, per RFC 7011 section 10.3.
// Each connection is a session: the exporter may keep it open across many
// messages, each reassembled from the stream using the Message Header's
// length field before being handed off.
type TCPListener struct {
	bindAddr string
	datagramCh chan datagram

	listener *net.TCPListener
}

func NewTCPListener(bindAddr string) *TCPListener {
	return &TCPListener{bindAddr: bindAddr, datagramCh: make(chan datagram, TCPChannelBufferSize)}
}

func (l *TCPListener) Listen(ctx context.Context) error {
	log := FromContext(ctx)
	defer close(l.datagramCh)

	addr, err := net.ResolveTCPAddr("tcp", l.bindAddr)
	if err != nil {
		return err
	}
	l.listener, err = net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}
	defer l.listener.Close()

	go func() {
		for {
			conn, err := l.listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				ErrorsTotal.Inc()
				log.Error(err, "failed to accept TCP connection", "addr", l.bindAddr)
				return
			}
			TCPActiveConnections.Inc()
			go l.serveConn(ctx, conn)
		}
	}()

	log.Info("started TCP listener", "addr", l.bindAddr)
	<-ctx.Done()
	log.Info("shutting down TCP listener", "addr", l.bindAddr)
	return nil
}

func (l *TCPListener) serveConn(ctx context.Context, conn net.Conn) {
	log := FromContext(ctx)
	defer TCPActiveConnections.Dec()
	defer conn.Close()

	sourceIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	sess := newSession(conn)

	for {
		msg, err := sess.receiveMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				ErrorsTotal.Inc()
				log.Error(err, "failed to reassemble IPFIX message from TCP stream", "remote_addr", conn.RemoteAddr().String())
			}
			return
		}
		TCPReceivedBytes.Add(float64(len(msg)))
		select {
		case <-ctx.Done():
			return
		case l.datagramCh <- datagram{payload: msg, source: net.ParseIP(sourceIP)}:
		}
	}
}

func (l *TCPListener) messages() <-chan datagram {
	return l.datagramCh
}

// session reassembles a sequence of length-prefixed IPFIX messages off of a
// single TCP connection. IPFIX does not delimit messages any other way, so
// the Message Header's own length field is the only framing available.
type session struct {
	reader io.Reader
}

func newSession(conn net.Conn) *session {
	return &session{reader: conn}
}

func (s *session) receiveMessage() ([]byte, error) {
	header := make([]byte, ipfixMessageHeaderLength)
	if _, err := io.ReadFull(s.reader, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("session closed mid-header: %w", err)
		}
		return nil, err
	}

	msgLength := binary.BigEndian.Uint16(header[2:4])
	if msgLength < ipfixMessageHeaderLength {
		return nil, ErrMessageTooShort
	}

	msg := bytes.NewBuffer(make([]byte, 0, msgLength))
	msg.Write(header)

	remaining := int(msgLength) - ipfixMessageHeaderLength
	if remaining > 0 {
		body := make([]byte, remaining)
		if _, err := io.ReadFull(s.reader, body); err != nil {
			return nil, fmt.Errorf("session closed mid-body: %w", err)
		}
		msg.Write(body)
	}
	return msg.Bytes(), nil
}

// Serve reads datagrams from a listener's channel and hands each to the
// collector until the channel is closed or ctx is done. It is the glue
// between UDPListener/TCPListener and Collector.Process; callers run it in
// its own goroutine per listener.
func (c *Collector) Serve(ctx context.Context, messages <-chan datagram) {
	log := FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case dg, ok := <-messages:
			if !ok {
				return
			}
			if err := c.Process(ctx, dg.payload, dg.source); err != nil {
				log.V(1).Info("dropped IPFIX datagram", "source", dg.source.String(), "error", err.Error())
			}
		}
	}
}

// ServeUDP binds and serves a UDP listener until ctx is done.
func (c *Collector) ServeUDP(ctx context.Context, bindAddr string) error {
	l := NewUDPListener(bindAddr)
	go c.Serve(ctx, l.messages())
	return l.Listen(ctx)
}

// ServeTCP binds and serves a TCP listener until ctx is done.
func (c *Collector) ServeTCP(ctx context.Context, bindAddr string) error {
	l := NewTCPListener(bindAddr)
	go c.Serve(ctx, l.messages())
	return l.Listen(ctx)
}
