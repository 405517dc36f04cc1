package nethttp

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/adamwoolhether/httpmulti/client/handle"
)

// ErrUnknownTarget is returned for an impersonation target with no profile.
var ErrUnknownTarget = errors.New("unknown impersonation target")

// profileHeaders returns the default request headers of target. Only the
// header set is reproduced, not the TLS fingerprint.
func profileHeaders(imp *handle.Impersonation) (http.Header, error) {
	if imp == nil {
		return nil, nil
	}

	family, version := splitTarget(imp.Target)
	if version == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, imp.Target)
	}

	var ua string
	h := http.Header{}
	switch family {
	case "chrome":
		ua = fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", version)
		h.Set("sec-ch-ua", fmt.Sprintf(`"Chromium";v="%s", "Not A(Brand";v="24", "Google Chrome";v="%s"`, version, version))
		h.Set("sec-ch-ua-mobile", "?0")
		h.Set("sec-ch-ua-platform", `"Windows"`)
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	case "edge":
		ua = fmt.Sprintf("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36 Edg/%s.0.0.0", version, version)
		h.Set("sec-ch-ua", fmt.Sprintf(`" Not A;Brand";v="99", "Chromium";v="%s", "Microsoft Edge";v="%s"`, version, version))
		h.Set("sec-ch-ua-mobile", "?0")
		h.Set("sec-ch-ua-platform", `"Windows"`)
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9")
	case "safari":
		v := strings.ReplaceAll(version, "_", ".")
		ua = fmt.Sprintf("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15", v)
		h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, imp.Target)
	}

	if !imp.DefaultHeaders {
		return http.Header{"User-Agent": {ua}}, nil
	}

	h.Set("User-Agent", ua)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Upgrade-Insecure-Requests", "1")

	return h, nil
}

// splitTarget splits "chrome110" into "chrome" and "110".
func splitTarget(target string) (string, string) {
	i := strings.IndexFunc(target, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return target, ""
	}

	version := target[i:]
	major, _, _ := strings.Cut(version, "_")
	if _, err := strconv.Atoi(major); err != nil {
		return target, ""
	}

	return target[:i], version
}
