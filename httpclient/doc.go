// Package httpclient posts JSON documents to external endpoints on behalf
// of the HTTP external writer. A client carries a bearer or personal
// access token, optional TLS settings, and the retry, circuit breaker and
// rate limiter policies of the resilience package.
//
//	client, err := httpclient.New(httpclient.Config{
//	    Auth:    httpclient.PATAuth(token),
//	    Retry:   httpclient.DefaultRetryConfig(),
//	    Breaker: httpclient.DefaultCircuitBreakerConfig("crm"),
//	})
//	resp, err := client.PostJSON(ctx, "https://hooks.example.com/events", payload, nil)
//
// Non-2xx responses are returned as *StatusError.
package httpclient
