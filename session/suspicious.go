package session

import "context"

// Reasons reported by CheckSuspicious.
const (
	ReasonMultipleIPs     = "multiple IP addresses detected"
	ReasonMultipleDevices = "multiple devices detected"
	ReasonRapidLogins     = "rapid login attempts detected"
)

// Assessment is the advisory outcome of CheckSuspicious.
type Assessment struct {
	Suspicious bool
	Reason     string

	// NewIPAddress and NewUserAgent report that the candidate login comes
	// from an address or agent not seen among active sessions. They are
	// informational and never set Suspicious.
	NewIPAddress bool
	NewUserAgent bool

	ActiveSessions int
}

// CheckSuspicious evaluates the user's active sessions against the
// heuristics in Config. The first matching rule wins:
//
//  1. more than MaxDistinctIPs distinct IP addresses,
//  2. more than MaxDistinctUserAgents distinct user agents,
//  3. more than MaxRapidLogins sessions started within RapidLoginWindow.
//
// The result is advisory; blocking is a caller decision.
func (r *Registry) CheckSuspicious(ctx context.Context, userID, ipAddress, userAgent string) (Assessment, error) {
	sessions, err := r.ListActive(ctx, userID)
	if err != nil {
		return Assessment{}, err
	}
	return r.assess(sessions, ipAddress, userAgent), nil
}

func (r *Registry) assess(sessions []*Record, ipAddress, userAgent string) Assessment {
	ips := make(map[string]struct{}, len(sessions))
	agents := make(map[string]struct{}, len(sessions))
	cutoff := r.now().Add(-r.config.RapidLoginWindow)
	recent := 0

	for _, s := range sessions {
		ips[s.IPAddress] = struct{}{}
		agents[s.UserAgent] = struct{}{}
		if s.LoginTime.After(cutoff) {
			recent++
		}
	}

	out := Assessment{ActiveSessions: len(sessions)}
	if ipAddress != "" {
		_, seen := ips[ipAddress]
		out.NewIPAddress = !seen
	}
	if userAgent != "" {
		_, seen := agents[userAgent]
		out.NewUserAgent = !seen
	}

	switch {
	case len(ips) > r.config.MaxDistinctIPs:
		out.Suspicious, out.Reason = true, ReasonMultipleIPs
	case len(agents) > r.config.MaxDistinctUserAgents:
		out.Suspicious, out.Reason = true, ReasonMultipleDevices
	case recent > r.config.MaxRapidLogins:
		out.Suspicious, out.Reason = true, ReasonRapidLogins
	}
	return out
}
