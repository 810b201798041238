package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind is the retry classification of an error.
type Kind int

const (
	KindOther Kind = iota
	KindRateLimit
	KindTransient
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Retryable reports whether another attempt can succeed.
func (k Kind) Retryable() bool {
	return k == KindRateLimit || k == KindTransient
}

// Classifier maps an error to a Kind.
type Classifier interface {
	Classify(err error) Kind
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) Kind

func (f ClassifierFunc) Classify(err error) Kind {
	return f(err)
}

// Chain returns the first non-KindOther answer of its members.
type Chain []Classifier

func (c Chain) Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	for _, classifier := range c {
		if classifier == nil {
			continue
		}
		if kind := classifier.Classify(err); kind != KindOther {
			return kind
		}
	}
	return KindOther
}

// TimeoutClassifier treats deadlines and network timeouts as transient.
type TimeoutClassifier struct{}

func (TimeoutClassifier) Classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}
	if errors.Is(err, ethereum.NotFound) {
		return KindNotFound
	}
	return KindOther
}

// JSONRPCClassifier inspects JSON-RPC error codes.
type JSONRPCClassifier struct {
	RateLimitCodes []int
	NotFoundCodes  []int
}

func (c JSONRPCClassifier) Classify(err error) Kind {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return KindOther
	}
	code := rpcErr.ErrorCode()
	for _, rl := range c.RateLimitCodes {
		if code == rl {
			return KindRateLimit
		}
	}
	for _, nf := range c.NotFoundCodes {
		if code == nf {
			return KindNotFound
		}
	}
	return KindOther
}

// HTTPStatusClassifier inspects the HTTP status of a failed RPC round trip.
type HTTPStatusClassifier struct{}

func (HTTPStatusClassifier) Classify(err error) Kind {
	var httpErr rpc.HTTPError
	if !errors.As(err, &httpErr) {
		return KindOther
	}
	switch httpErr.StatusCode {
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindTransient
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindOther
	}
}

// MessageClassifier matches lower-cased substrings of the error text.
// Providers that only signal throttling in prose are handled here.
type MessageClassifier struct {
	RateLimit []string
	Transient []string
	NotFound  []string
}

func (c MessageClassifier) Classify(err error) Kind {
	msg := strings.ToLower(err.Error())
	if containsAny(msg, c.RateLimit) {
		return KindRateLimit
	}
	if containsAny(msg, c.NotFound) {
		return KindNotFound
	}
	if containsAny(msg, c.Transient) {
		return KindTransient
	}
	return KindOther
}

func containsAny(msg string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// DefaultClassifier covers the common hosted providers.
func DefaultClassifier() Classifier {
	return Chain{
		TimeoutClassifier{},
		JSONRPCClassifier{
			RateLimitCodes: []int{-32005},
			NotFoundCodes:  []int{-32001},
		},
		HTTPStatusClassifier{},
		MessageClassifier{
			RateLimit: []string{
				"too many requests",
				"rate limit",
				"rate-limit",
				"exceeded the quota",
				"request limit reached",
				"compute units per second",
			},
			Transient: []string{
				"timeout",
				"timed out",
				"connection reset",
				"broken pipe",
			},
			NotFound: []string{
				"block not found",
				"transaction not found",
				"not found",
			},
		},
	}
}
