package overlay

import (
	"crypto/rand"
	"net"
)

func randRead(b []byte) (int, error) {
	return rand.Read(b)
}

func udpAddrOf(addr net.Addr) net.UDPAddr {
	if ua, ok := addr.(*net.UDPAddr); ok && ua != nil {
		return *ua
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return net.UDPAddr{}
	}
	return udpAddrFromParts(host, atoiOrZero(port))
}

func udpAddrFromParts(ip string, port int) net.UDPAddr {
	return net.UDPAddr{IP: net.ParseIP(ip), Port: port}
}

func atoiOrZero(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
