package tor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// checkProxyTimeout bounds a proxy check. The check only talks to the
// proxy itself, so it should be fast.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 protocol bytes (RFC 1928).
const (
	socks5Version        = 0x05
	socks5AuthNone       = 0x00
	socks5CmdConnect     = 0x01
	socks5AddrTypeDomain = 0x03
)

// checkHost is the CONNECT target of the check. The .invalid TLD never
// resolves (RFC 6761), so the proxy answers with a failure code without
// contacting anything.
const checkHost = "crawlkit-proxy-check.invalid"

// CheckProxy verifies that addr is a SOCKS5 proxy that accepts
// unauthenticated clients and answers CONNECT requests.
//
// The check performs the SOCKS5 handshake by hand instead of issuing an
// HTTP request, so a proxy that merely accepts TCP connections is not
// mistaken for a working one.
func CheckProxy(ctx context.Context, addr string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no authentication.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailure(err)
	}
	// A proxy demanding authentication answers 0xFF.
	if authResp[0] != socks5Version || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	connectReq := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeDomain, byte(len(checkHost))}
	connectReq = append(connectReq, checkHost...)
	connectReq = append(connectReq, 0x00, 80)
	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// Any reply code proves the proxy processed the request; a failure
	// code is expected for the check host.
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailure(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// VerifyProxy runs CheckProxy and returns the status error, naming addr,
// or nil when the proxy works.
func VerifyProxy(ctx context.Context, addr string) error {
	if err := CheckProxy(ctx, addr).Err(); err != nil {
		return fmt.Errorf("proxy %s: %w", addr, err)
	}
	return nil
}

func readFailure(err error) ProxyStatus {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}
