package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sgov", Name: "auth_logins_total", Help: "Number of login attempts by result."},
		[]string{"result"},
	)
	Rotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sgov", Name: "auth_refresh_rotations_total", Help: "Number of refresh rotation attempts by outcome."},
		[]string{"outcome"},
	)
	FamilyKills = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "sgov", Name: "auth_family_kills_total", Help: "Number of full credential-family revocations triggered by token reuse."},
	)
	BridgeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sgov", Name: "auth_bridge_attempts_total", Help: "Number of session-bridge attempts by result."},
		[]string{"result"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sgov", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "sgov", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(Logins)
	reg.MustRegister(Rotations)
	reg.MustRegister(FamilyKills)
	reg.MustRegister(BridgeAttempts)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
