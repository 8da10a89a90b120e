package localisation

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/dmweis/hamilton/pkg/log"
)

const maxDatagram = 65536

// ListenMulticast joins the UDP multicast group at addr and pushes every
// datagram that decodes as T into feed. It returns when ctx is cancelled.
func ListenMulticast[T any](ctx context.Context, addr string, feed *Feed[T], logger log.Logger) error {
	group, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return fmt.Errorf("resolve multicast address %s: %w", addr, err)
	}
	if !group.IP.IsMulticast() {
		return fmt.Errorf("address %s is not multicast", addr)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return fmt.Errorf("join multicast group %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Infof("Listening for multicast frames on %s", addr)
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read multicast %s: %w", addr, err)
		}
		var frame T
		if err := json.Unmarshal(buf[:n], &frame); err != nil {
			logger.Warnf("Dropping malformed multicast frame: %v", err)
			continue
		}
		feed.Push(frame)
	}
}
