/*
Copyright (C) 2018 Intel Corporation

SPDX-License-Identifier: Apache-2.0
*/

// Package transport implements the packetized RPC connection to one
// satellite process domain. Unlike the JSON-RPC request/reply
// exchange it is grounded on, an SGM packet is one-way and
// asynchronously correlated by token: a connection frames raw binary
// packets over a net.Conn and feeds a background reader that
// demultiplexes every inbound frame into the driver's event or
// response queue via a PacketCallback, mirroring the
// measure-then-frame discipline the rest of this module uses for the
// APM wire schema.
package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/audiograph/sgm/pkg/log"
	"github.com/audiograph/sgm/pkg/sgm"
	"github.com/audiograph/sgm/pkg/sgmcommon"
)

// frameHeaderSize is the fixed portion of every frame: a 4-byte
// length prefix, then six uint32 fields describing the packet.
const frameHeaderSize = 4 + 6*4

// logConn wraps a net.Conn to log every read and write at debug
// level.
type logConn struct {
	net.Conn
	logger log.Logger
}

func (lc *logConn) Read(b []byte) (int, error) {
	n, err := lc.Conn.Read(b)
	if err == nil {
		lc.logger.Debugw("read", "data", log.LineBuffer(b[:n]))
	} else if err != io.EOF {
		lc.logger.Errorw("read error", "error", err)
	}
	return n, err
}

func (lc *logConn) Write(b []byte) (int, error) {
	lc.logger.Debugw("write", "data", log.LineBuffer(b))
	n, err := lc.Conn.Write(b)
	if err != nil {
		lc.logger.Errorw("write error", "error", err)
	}
	return n, err
}

// Conn is one packetized RPC connection to a satellite process
// domain. It implements gprouter.RemoteSender so a Router can forward
// outbound packets across it, and drives an inbound PacketCallback
// for frames read off the wire.
type Conn struct {
	logger log.Logger
	conn   net.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a packetized connection to endpoint (unix:// or tcp://,
// per sgmcommon.ParseEndpoint) and starts a background reader that
// invokes onPacket for every frame received, until the connection is
// closed or the peer hangs up.
func Dial(logger log.Logger, endpoint string, onPacket sgm.PacketCallback) (*Conn, error) {
	network, address, err := sgmcommon.ParseEndpoint(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "transport: invalid endpoint")
	}
	raw, err := net.Dial(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", endpoint)
	}
	return NewConn(logger, raw, onPacket), nil
}

// NewConn wraps an already-established net.Conn (e.g. one returned by
// net.Listener.Accept on the satellite side) and starts the same
// background reader Dial does. This is the symmetric half of Dial:
// whichever side of the connection did not initiate it still needs
// its inbound frames demultiplexed the same way.
func NewConn(logger log.Logger, raw net.Conn, onPacket sgm.PacketCallback) *Conn {
	c := &Conn{
		logger: logger,
		conn:   &logConn{raw, logger.With("at", "sgm-transport")},
	}
	go c.readLoop(onPacket)
	return c
}

// readLoop decodes frames until the connection fails or is closed.
func (c *Conn) readLoop(onPacket sgm.PacketCallback) {
	for {
		pkt, err := c.readFrame()
		if err != nil {
			if err != io.EOF {
				c.logger.Errorw("transport read loop ended", "error", err)
			}
			return
		}
		onPacket(pkt)
	}
}

func (c *Conn) readFrame() (*sgm.Packet, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, err
	}
	frameLen := binary.BigEndian.Uint32(header[0:4])
	pkt := &sgm.Packet{
		SrcDomain: binary.BigEndian.Uint32(header[4:8]),
		DstDomain: binary.BigEndian.Uint32(header[8:12]),
		SrcPort:   binary.BigEndian.Uint32(header[12:16]),
		DstPort:   binary.BigEndian.Uint32(header[16:20]),
		Token:     binary.BigEndian.Uint32(header[20:24]),
		Opcode:    sgm.Opcode(binary.BigEndian.Uint32(header[24:28])),
	}
	payloadLen := frameLen - (frameHeaderSize - 4)
	if payloadLen > 0 {
		pkt.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(c.conn, pkt.Payload); err != nil {
			return nil, err
		}
	}
	return pkt, nil
}

// Send implements gprouter.RemoteSender: it frames pkt and writes it
// to the connection. Concurrent sends are serialized so a frame is
// never interleaved with another.
func (c *Conn) Send(pkt *sgm.Packet) error {
	frameLen := uint32(frameHeaderSize-4) + uint32(len(pkt.Payload))
	buf := make([]byte, frameHeaderSize+len(pkt.Payload))
	binary.BigEndian.PutUint32(buf[0:4], frameLen)
	binary.BigEndian.PutUint32(buf[4:8], pkt.SrcDomain)
	binary.BigEndian.PutUint32(buf[8:12], pkt.DstDomain)
	binary.BigEndian.PutUint32(buf[12:16], pkt.SrcPort)
	binary.BigEndian.PutUint32(buf[16:20], pkt.DstPort)
	binary.BigEndian.PutUint32(buf[20:24], pkt.Token)
	binary.BigEndian.PutUint32(buf[24:28], uint32(pkt.Opcode))
	copy(buf[frameHeaderSize:], pkt.Payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(buf)
	if err != nil {
		return errors.Wrap(err, "transport: send failed")
	}
	return nil
}

// Close shuts the connection down. It is safe to call more than
// once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
