package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bunnhack/letsim/config"
	"github.com/sony/gobreaker/v2"
)

// errUpstreamStatus marks a 5xx upstream response as a breaker failure. The
// response itself is still relayed.
var errUpstreamStatus = errors.New("upstream server error")

type upstream struct {
	name    string
	url     string
	key     string
	keyEnv  string
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newUpstream(name, url, key, keyEnv string, cfg config.BreakerConfig, logger *slog.Logger) *upstream {
	u := &upstream{name: name, url: url, key: key, keyEnv: keyEnv}
	if !cfg.Enabled {
		return u
	}
	maxFailures := cfg.MaxFailures
	u.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "relay:" + name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return u
}

// do sends req through the breaker. Transport failures and 5xx responses
// count as failures; a 5xx response is returned with a nil error. Requests
// are never retried.
func (u *upstream) do(client *http.Client, req *http.Request) (*http.Response, error) {
	if u.breaker == nil {
		return client.Do(req)
	}
	resp, err := u.breaker.Execute(func() (*http.Response, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("%w: %d", errUpstreamStatus, resp.StatusCode)
		}
		return resp, nil
	})
	if errors.Is(err, errUpstreamStatus) {
		return resp, nil
	}
	return resp, err
}
