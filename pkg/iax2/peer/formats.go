package peer

import "github.com/arzzra/iax2/pkg/iax2/frame"

// audioPrefs is the audio codec preference order, borrowed from Asterisk:
// start with what all telephony equipment speaks and work down to the
// vocoders.
var audioPrefs = []uint32{
	frame.FormatULAW,
	frame.FormatALAW,
	frame.FormatSlinear,
	frame.FormatG726,
	frame.FormatG726AAL2,
	frame.FormatADPCM,
	frame.FormatGSM,
	frame.FormatILBC,
	frame.FormatSpeex,
	frame.FormatLPC10,
	frame.FormatG729A,
	frame.FormatG723_1,
}

var videoPrefs = []uint32{
	frame.FormatJPEG,
	frame.FormatPNG,
	frame.FormatH261,
	frame.FormatH263,
	frame.FormatH263Plus,
	frame.FormatH264,
}

// chooseFormats intersects the two capability masks and picks the first
// matching audio format and the first matching video format from the
// preference tables. Either half may come up empty; with no common format
// at all the result is zero.
func chooseFormats(ownCapabilities, peerCapabilities uint32) uint32 {
	common := ownCapabilities & peerCapabilities

	var res uint32
	if common&frame.FormatAudioMask != 0 {
		for _, f := range audioPrefs {
			if common&f != 0 {
				res = f
				break
			}
		}
	}
	if common&frame.FormatVideoMask != 0 {
		for _, f := range videoPrefs {
			if common&f != 0 {
				res |= f
				break
			}
		}
	}

	return res
}

// preferredFormat picks the preferred audio and video formats out of a
// capability mask; it is chooseFormats of a mask with itself.
func preferredFormat(capabilities uint32) uint32 {
	return chooseFormats(capabilities, capabilities)
}
