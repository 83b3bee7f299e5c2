package rules

import "github.com/careloop/careloop/internal/domain/records"

// Skip reasons reported when the policy gate suppresses every action of a
// matched event. Suppression is a normal, reportable outcome, never an
// error, and is always distinguishable from a condition non-match.
const (
	SkipPatientAbsent = "patient record unavailable"
	SkipDNC           = "patient is marked do-not-contact"
	SkipNoChannels    = "no permitted channels"
)

// Gate filters a matched rule's actions against the patient's communication
// policy. It returns the surviving channels in declared order, and a skip
// reason when nothing survives:
//   - nil patient suppresses everything (preference cannot be confirmed),
//   - dnc suppresses everything,
//   - otherwise each channel is kept iff the matching comm_prefs flag is
//     true; channels drop individually.
func Gate(actions []Channel, patient *records.Patient) ([]Channel, string) {
	if patient == nil {
		return nil, SkipPatientAbsent
	}
	if patient.DNC {
		return nil, SkipDNC
	}
	var allowed []Channel
	for _, a := range actions {
		if channelPermitted(a, patient.CommPrefs) {
			allowed = append(allowed, a)
		}
	}
	if len(allowed) == 0 {
		return nil, SkipNoChannels
	}
	return allowed, ""
}

func channelPermitted(ch Channel, prefs records.CommPrefs) bool {
	switch ch {
	case ChannelSMS:
		return prefs.SMS
	case ChannelEmail:
		return prefs.Email
	case ChannelCall:
		return prefs.Call
	}
	return false
}
