package classify

// Status is the derived health of a site.
type Status string

const (
	// StatusGreen means the server answered.
	StatusGreen Status = "green"

	// StatusYellow means exactly one of server/gateway answered: a
	// network-path problem rather than a hardware failure.
	StatusYellow Status = "yellow"

	// StatusRed means neither server nor gateway answered.
	StatusRed Status = "red"
)

// Code returns the numeric status code for a status.
func (s Status) Code() int {
	switch s {
	case StatusGreen:
		return 0
	case StatusYellow:
		return 1
	default:
		return 2
	}
}

// Classify derives a site's status from its probe outcomes.
//
// With the gateway check disabled the server alone decides: up is green,
// down is red. With it enabled, a reachable gateway under an unreachable
// server signals a last-mile problem (yellow), both down is full-site
// loss (red), and a server-only-reachable site is folded into yellow
// rather than given a distinct state.
func Classify(serverUp, gatewayUp, gatewayChecked bool) Status {
	if !gatewayChecked {
		if serverUp {
			return StatusGreen
		}

		return StatusRed
	}

	switch {
	case serverUp && gatewayUp:
		return StatusGreen
	case serverUp != gatewayUp:
		return StatusYellow
	default:
		return StatusRed
	}
}
