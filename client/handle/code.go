package handle

import "fmt"

// Code is the numeric result of a transfer. Values follow the numbering
// used by libcurl so codes stay recognisable across backends.
type Code int

const (
	CodeOK                     Code = 0
	CodeUnsupportedProtocol    Code = 1
	CodeURLMalformat           Code = 3
	CodeCouldntResolveProxy    Code = 5
	CodeCouldntResolveHost     Code = 6
	CodeCouldntConnect         Code = 7
	CodeHTTPReturnedError      Code = 22
	CodeWriteError             Code = 23
	CodeReadError              Code = 26
	CodeOperationTimedOut      Code = 28
	CodeSSLConnectError        Code = 35
	CodeAbortedByCallback      Code = 42
	CodeTooManyRedirects       Code = 47
	CodeGotNothing             Code = 52
	CodeSendError              Code = 55
	CodeRecvError              Code = 56
	CodePeerFailedVerification Code = 60
	CodeSendFailRewind         Code = 65
)

var codeText = map[Code]string{
	CodeOK:                     "no error",
	CodeUnsupportedProtocol:    "unsupported protocol",
	CodeURLMalformat:           "url malformed",
	CodeCouldntResolveProxy:    "couldn't resolve proxy name",
	CodeCouldntResolveHost:     "couldn't resolve host name",
	CodeCouldntConnect:         "couldn't connect to server",
	CodeHTTPReturnedError:      "http response code said error",
	CodeWriteError:             "failed writing received data",
	CodeReadError:              "failed reading upload data",
	CodeOperationTimedOut:      "timeout was reached",
	CodeSSLConnectError:        "ssl connect error",
	CodeAbortedByCallback:      "operation was aborted by an application callback",
	CodeTooManyRedirects:       "number of redirects hit maximum amount",
	CodeGotNothing:             "server returned nothing",
	CodeSendError:              "failed sending data to the peer",
	CodeRecvError:              "failure when receiving data from the peer",
	CodePeerFailedVerification: "ssl peer certificate or ssh remote key was not ok",
	CodeSendFailRewind:         "send failed since rewinding of the data stream failed",
}

func (c Code) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return fmt.Sprintf("code %d", int(c))
}

// Timeout reports whether c stands for a timeout or a low-speed stall.
func (c Code) Timeout() bool {
	return c == CodeOperationTimedOut
}
