package httputil

import (
	"net"
	"net/http"
	"strings"

	"github.com/prebid/prebid-server-eplanning/util/iputil"
)

var (
	trueClientIP  = http.CanonicalHeaderKey("True-Client-IP")
	xForwardedFor = http.CanonicalHeaderKey("X-Forwarded-For")
	xRealIP       = http.CanonicalHeaderKey("X-Real-IP")
)

// FindIP returns the first address of the request accepted by the validator. It looks at
// True-Client-IP, each X-Forwarded-For entry, X-Real-IP and finally the remote address.
func FindIP(r *http.Request, v iputil.IPValidator) (net.IP, iputil.IPVersion) {
	var candidates []string
	candidates = append(candidates, r.Header.Get(trueClientIP))
	candidates = append(candidates, strings.Split(r.Header.Get(xForwardedFor), ",")...)
	candidates = append(candidates, r.Header.Get(xRealIP))
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		candidates = append(candidates, host)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if ip, ver := iputil.ParseIP(candidate); ip != nil && v.IsValid(ip, ver) {
			return ip, ver
		}
	}

	return nil, iputil.IPvUnknown
}
