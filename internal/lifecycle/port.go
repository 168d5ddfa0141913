package lifecycle

import (
	"fmt"
	"math/rand"
	"net"

	"github.com/sjdv1982/hashserver/internal/herr"
)

// Listen binds a TCP listener: an explicit port if non-zero, otherwise
// a random free port sampled without replacement from
// [rangeStart, rangeEnd]. With neither a port nor a range set, it binds
// an OS-assigned ephemeral port.
func Listen(host string, port, rangeStart, rangeEnd int) (net.Listener, int, error) {
	if port != 0 {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err != nil {
			return nil, 0, herr.New(herr.KindListenError, err.Error(), err)
		}
		return l, port, nil
	}

	if rangeStart == 0 && rangeEnd == 0 {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:0", host))
		if err != nil {
			return nil, 0, herr.New(herr.KindListenError, err.Error(), err)
		}
		return l, l.Addr().(*net.TCPAddr).Port, nil
	}

	if rangeStart <= 0 || rangeEnd < rangeStart {
		return nil, 0, herr.New(herr.KindConfigError, "invalid port range", nil)
	}

	candidates := rand.Perm(rangeEnd - rangeStart + 1)
	for _, offset := range candidates {
		p := rangeStart + offset
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err == nil {
			return l, p, nil
		}
	}

	return nil, 0, herr.New(herr.KindListenError, fmt.Sprintf("no free port in range [%d, %d]", rangeStart, rangeEnd), nil)
}
