package s7

import (
	"errors"
	"net"
	"time"

	"github.com/robinson/gos7"
)

const (
	defaultPort = "102"

	areaDB     = 0x84
	wordLenBit = 0x01
)

// gos7Transport adapts a robinson/gos7 TCP handler to Transport.
type gos7Transport struct {
	handler *gos7.TCPClientHandler
	client  gos7.Client
}

// DialTCP is the production Dialer. The remote TSAP carries connection type,
// rack and slot (type<<8 | rack<<5 | slot). gos7 always announces local TSAP 0x0100.
func DialTCP(host string, localTSAP, remoteTSAP uint16, timeout time.Duration) Transport {
	connType, rack, slot := SplitTSAP(remoteTSAP)

	handler := gos7.NewTCPClientHandlerWithConnectType(withDefaultPort(host), rack, slot, connType)
	handler.Timeout = timeout

	return &gos7Transport{
		handler: handler,
		client:  gos7.NewClient(handler),
	}
}

// SplitTSAP decodes a remote TSAP into connection type, rack and slot.
func SplitTSAP(tsap uint16) (connType, rack, slot int) {
	connType = int(tsap >> 8)
	rack = int(tsap&0xFF) >> 5
	slot = int(tsap & 0x1F)
	return connType, rack, slot
}

func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, defaultPort)
}

func (t *gos7Transport) Connect() error {
	return t.handler.Connect()
}

func (t *gos7Transport) Close() error {
	return t.handler.Close()
}

func (t *gos7Transport) ReadDB(db, start, size int, buf []byte) error {
	return t.client.AGReadDB(db, start, size, buf)
}

func (t *gos7Transport) WriteDB(db, start, size int, buf []byte) error {
	return t.client.AGWriteDB(db, start, size, buf)
}

func (t *gos7Transport) WriteBit(db, bitAddress int, value bool) error {
	data := []byte{0x00}
	if value {
		data[0] = 0x01
	}

	items := []gos7.S7DataItem{{
		Area:     areaDB,
		WordLen:  wordLenBit,
		DBNumber: db,
		Start:    bitAddress,
		Amount:   1,
		Data:     data,
	}}
	// gos7 prints the request to stdout here
	if err := t.client.AGWriteMulti(items, len(items)); err != nil {
		return err
	}
	if items[0].Error != "" {
		return errors.New(items[0].Error)
	}
	return nil
}
