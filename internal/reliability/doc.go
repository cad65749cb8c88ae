// Package reliability guards calls to backend services.
//
// Each service gets a CircuitBreaker that opens after consecutive failures and
// admits a single probe call once its cooldown elapses. The Registry maps
// service names to breakers and VPN requirements, and the HealthChecker feeds
// periodic probe results into the same breakers.
package reliability
