package context

type Key string

const (
	Claims Key = "claims"
	Params Key = "params"

	// ClientIP holds the scanner address once the rate limiter has resolved it.
	ClientIP Key = "client_ip"
)
