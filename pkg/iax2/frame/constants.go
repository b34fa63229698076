package frame

import "strings"

// Shell is the way an IAX2 frame is carried on the wire.
type Shell int

const (
	ShellUndefined Shell = iota
	ShellFull
	ShellMini
	ShellMeta
)

func (s Shell) String() string {
	switch s {
	case ShellFull:
		return "FULL"
	case ShellMini:
		return "MINI"
	case ShellMeta:
		return "META"
	}
	return "UNDEFINED"
}

// MetaType is the kind of META frame. Only video is defined.
type MetaType int

const (
	MetaUndefined MetaType = iota
	MetaVideo
)

func (m MetaType) String() string {
	if m == MetaVideo {
		return "VIDEO"
	}
	return "UNDEFINED"
}

// Direction marks whether a frame was received or is being prepared for
// sending. Encode refuses frames that are not outbound.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionIn
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "Rx"
	case DirectionOut:
		return "Tx"
	}
	return "Unknown"
}

// Type identifies the payload of a FULL frame.
//
// These values are defined by the IAX2 specification and MUST not be
// changed.
type Type uint8

const (
	TypeUndefined Type = 0x00
	// TypeDTMFEnd marks the end of a DTMF digit. Subclass: the digit, in
	// ASCII.
	TypeDTMFEnd Type = 0x01
	// TypeVoice is a voice frame. Normally voice is sent in mini frames.
	TypeVoice Type = 0x02
	// TypeVideo is a video frame. Normally video is sent in meta frames.
	TypeVideo   Type = 0x03
	TypeControl Type = 0x04
	TypeNull    Type = 0x05
	// TypeIAX2 is a signalling frame. Subclass: one of the Subclass values.
	TypeIAX2  Type = 0x06
	TypeText  Type = 0x07
	TypeImage Type = 0x08
	TypeHTML  Type = 0x09
	// TypeCNG is comfort noise generation.
	TypeCNG   Type = 0x0A
	TypeModem Type = 0x0B
	// TypeDTMFBegin marks the beginning of a DTMF digit.
	TypeDTMFBegin Type = 0x0C
)

func (t Type) String() string {
	switch t {
	case TypeDTMFEnd:
		return "DTMF_END"
	case TypeVoice:
		return "VOICE"
	case TypeVideo:
		return "VIDEO"
	case TypeControl:
		return "CONTROL"
	case TypeNull:
		return "NULL"
	case TypeIAX2:
		return "IAX2"
	case TypeText:
		return "TEXT"
	case TypeImage:
		return "IMAGE"
	case TypeHTML:
		return "HTML"
	case TypeCNG:
		return "CNG"
	case TypeModem:
		return "MODEM"
	case TypeDTMFBegin:
		return "DTMF_BEGIN"
	}
	return "UNDEFINED"
}

// TypeFromString resolves a FULL frame type by its wire name.
func TypeFromString(s string) (Type, bool) {
	for t := TypeDTMFEnd; t <= TypeDTMFBegin; t++ {
		if strings.EqualFold(s, t.String()) {
			return t, true
		}
	}
	return TypeUndefined, false
}

// Subclass values for FULL frames of type IAX2.
//
// These values are defined by the IAX2 specification and MUST not be
// changed.
type Subclass uint8

const (
	// SubclassNew initiates a new call.
	SubclassNew Subclass = 0x01
	// SubclassPing is a ping request.
	SubclassPing Subclass = 0x02
	// SubclassPong is a ping or poke reply.
	SubclassPong Subclass = 0x03
	// SubclassAck is an explicit acknowledgment.
	SubclassAck Subclass = 0x04
	// SubclassHangup initiates call teardown.
	SubclassHangup Subclass = 0x05
	// SubclassReject rejects a call.
	SubclassReject Subclass = 0x06
	// SubclassAccept accepts a call.
	SubclassAccept Subclass = 0x07
	// SubclassAuthReq requests authentication.
	SubclassAuthReq Subclass = 0x08
	// SubclassAuthRep is an authentication reply.
	SubclassAuthRep Subclass = 0x09
	// SubclassInval is the invalid message response.
	SubclassInval Subclass = 0x0A
	// SubclassLagRq is a lag request.
	SubclassLagRq Subclass = 0x0B
	// SubclassLagRp is a lag reply.
	SubclassLagRp Subclass = 0x0C
	// SubclassRegReq is a registration request.
	SubclassRegReq Subclass = 0x0D
	// SubclassRegAuth is a registration authentication request.
	SubclassRegAuth Subclass = 0x0E
	// SubclassRegAck is a registration acknowledgment.
	SubclassRegAck Subclass = 0x0F
	// SubclassRegRej is a registration reject.
	SubclassRegRej Subclass = 0x10
	// SubclassRegRel is a registration release.
	SubclassRegRel Subclass = 0x11
	// SubclassVNAK is a voice/video retransmit request.
	SubclassVNAK Subclass = 0x12
	// SubclassDpReq is a dialplan request.
	SubclassDpReq Subclass = 0x13
	// SubclassDpRep is a dialplan reply.
	SubclassDpRep Subclass = 0x14
	SubclassDial  Subclass = 0x15
	// SubclassTxReq is a transfer request.
	SubclassTxReq Subclass = 0x16
	// SubclassTxCnt is transfer connect.
	SubclassTxCnt Subclass = 0x17
	// SubclassTxAcc is transfer accept.
	SubclassTxAcc Subclass = 0x18
	// SubclassTxReady is transfer ready.
	SubclassTxReady Subclass = 0x19
	// SubclassTxRel is transfer release.
	SubclassTxRel Subclass = 0x1A
	// SubclassTxRej is transfer reject.
	SubclassTxRej Subclass = 0x1B
	// SubclassQuelch halts media transmission.
	SubclassQuelch Subclass = 0x1C
	// SubclassUnquelch resumes media transmission.
	SubclassUnquelch Subclass = 0x1D
	// SubclassPoke is a poke request.
	SubclassPoke Subclass = 0x1E
	// 0x1F is noted as reserved in the RFC draft.
	// SubclassMWI is a message waiting indication.
	SubclassMWI Subclass = 0x20
	// SubclassUnsupport reports an unsupported message.
	SubclassUnsupport Subclass = 0x21
	// SubclassTransfer is a remote transfer request.
	SubclassTransfer Subclass = 0x22
	// SubclassProvision provisions an IAX2 device.
	SubclassProvision Subclass = 0x23
	// SubclassFwDownl requests a firmware download.
	SubclassFwDownl Subclass = 0x24
	// SubclassFwData transmits firmware data.
	SubclassFwData Subclass = 0x25
)

var subclassNames = map[Subclass]string{
	SubclassNew:       "NEW",
	SubclassPing:      "PING",
	SubclassPong:      "PONG",
	SubclassAck:       "ACK",
	SubclassHangup:    "HANGUP",
	SubclassReject:    "REJECT",
	SubclassAccept:    "ACCEPT",
	SubclassAuthReq:   "AUTHREQ",
	SubclassAuthRep:   "AUTHREP",
	SubclassInval:     "INVAL",
	SubclassLagRq:     "LAGRQ",
	SubclassLagRp:     "LAGRP",
	SubclassRegReq:    "REGREQ",
	SubclassRegAuth:   "REGAUTH",
	SubclassRegAck:    "REGACK",
	SubclassRegRej:    "REGREJ",
	SubclassRegRel:    "REGREL",
	SubclassVNAK:      "VNAK",
	SubclassDpReq:     "DPREQ",
	SubclassDpRep:     "DPREP",
	SubclassDial:      "DIAL",
	SubclassTxReq:     "TXREQ",
	SubclassTxCnt:     "TXCNT",
	SubclassTxAcc:     "TXACC",
	SubclassTxReady:   "TXREADY",
	SubclassTxRel:     "TXREL",
	SubclassTxRej:     "TXREJ",
	SubclassQuelch:    "QUELCH",
	SubclassUnquelch:  "UNQUELCH",
	SubclassPoke:      "POKE",
	SubclassMWI:       "MWI",
	SubclassUnsupport: "UNSUPPORT",
	SubclassTransfer:  "TRANSFER",
	SubclassProvision: "PROVISION",
	SubclassFwDownl:   "FWDOWNL",
	SubclassFwData:    "FWDATA",
}

func (s Subclass) String() string {
	if name, ok := subclassNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// SubclassFromString resolves an IAX2 subclass by its wire name.
func SubclassFromString(s string) (Subclass, bool) {
	for sc, name := range subclassNames {
		if strings.EqualFold(s, name) {
			return sc, true
		}
	}
	return 0, false
}

// IEType identifies an Information Element within a FULL frame of type
// IAX2.
type IEType uint8

const (
	// IECalledNumber is the number/extension being called.
	IECalledNumber IEType = 0x01
	// IECallingNumber is the calling number.
	IECallingNumber IEType = 0x02
	// IECallingANI is the calling number ANI for billing.
	IECallingANI IEType = 0x03
	// IECallingName is the name of the caller.
	IECallingName IEType = 0x04
	// IECalledContext is the context for the called number.
	IECalledContext IEType = 0x05
	// IEUsername is the username for authentication.
	IEUsername IEType = 0x06
	// IEPassword is the password for authentication.
	IEPassword IEType = 0x07
	// IECapability is the actual codec capability bitmask.
	IECapability IEType = 0x08
	// IEFormat is the desired codec format bitmask.
	IEFormat IEType = 0x09
	// IELanguage is the desired language.
	IELanguage IEType = 0x0A
	// IEVersion is the protocol version.
	IEVersion IEType = 0x0B
	// IEADSICPE is the CPE ADSI capability.
	IEADSICPE IEType = 0x0C
	// IEDNID is the originally dialed DNID.
	IEDNID IEType = 0x0D
	// IEAuthMethods is the authentication method bitmask.
	IEAuthMethods IEType = 0x0E
	// IEChallenge is the challenge data for MD5/RSA.
	IEChallenge IEType = 0x0F
	// IEMD5Result is the MD5 challenge result.
	IEMD5Result IEType = 0x10
	// IERSAResult is the RSA challenge result.
	IERSAResult IEType = 0x11
	// IEApparentAddr is the apparent address of the peer.
	IEApparentAddr IEType = 0x12
	// IERefresh says when to refresh a registration.
	IERefresh IEType = 0x13
	// IEDPStatus is the dialplan status.
	IEDPStatus IEType = 0x14
	// IECallNo is the call number of the peer.
	IECallNo IEType = 0x15
	// IECause is a cause string.
	IECause IEType = 0x16
	// IEIAX2Unknown reports an unknown IAX command.
	IEIAX2Unknown IEType = 0x17
	// IEMsgCount is how many messages are waiting.
	IEMsgCount IEType = 0x18
	// IEAutoAnswer requests auto-answer.
	IEAutoAnswer IEType = 0x19
	// IEMusicOnHold requests music on hold with QUELCH.
	IEMusicOnHold IEType = 0x1A
	// IETransferID is a transfer request identifier.
	IETransferID IEType = 0x1B
	// IERDNIS is the referring DNIS.
	IERDNIS IEType = 0x1C
	// IEProvisioning carries provisioning information.
	IEProvisioning IEType = 0x1D
	// IEAESProvisioning carries AES provisioning information.
	IEAESProvisioning IEType = 0x1E
	// IEDateTime is the current date and time.
	IEDateTime IEType = 0x1F
	// IEDeviceType is the device type.
	IEDeviceType IEType = 0x20
	// IEServiceIdent is the service identifier.
	IEServiceIdent IEType = 0x21
	// IEFirmwareVer is the firmware revision.
	IEFirmwareVer IEType = 0x22
	// IEFwBlockDesc is a firmware block description.
	IEFwBlockDesc IEType = 0x23
	// IEFwBlockData is a firmware block of data.
	IEFwBlockData IEType = 0x24
	// IEProvVer is the provisioning version.
	IEProvVer IEType = 0x25
	// IECallingPres is the calling presentation.
	IECallingPres IEType = 0x26
	// IECallingTON is the calling type of number.
	IECallingTON IEType = 0x27
	// IECallingTNS is the calling transit network select.
	IECallingTNS IEType = 0x28
	// IESamplingRate is the supported sampling rates.
	IESamplingRate IEType = 0x29
	// IECauseCode is the hangup cause.
	IECauseCode IEType = 0x2A
	// IEEncryption is the encryption format.
	IEEncryption IEType = 0x2B
	// IEEncKey is a 128-bit AES encryption key.
	IEEncKey IEType = 0x2C
	// IECodecPrefs is the codec negotiation preference list.
	IECodecPrefs IEType = 0x2D
	// IERRJitter is received jitter, as in RFC 1889.
	IERRJitter IEType = 0x2E
	// IERRLoss is received loss, as in RFC 1889.
	IERRLoss IEType = 0x2F
	// IERRPkts is the count of received frames.
	IERRPkts IEType = 0x30
	// IERRDelay is the max playout delay for received frames in ms.
	IERRDelay IEType = 0x31
	// IERRDropped is the count of dropped frames.
	IERRDropped IEType = 0x32
	// IERROOO is the count of frames received out of order.
	IERROOO IEType = 0x33
	// IEVariable is a variable.
	IEVariable IEType = 0x34
	// IEOSPToken is an OSP token.
	IEOSPToken IEType = 0x35
)

var ieTypeNames = map[IEType]string{
	IECalledNumber:    "CALLED_NUMBER",
	IECallingNumber:   "CALLING_NUMBER",
	IECallingANI:      "CALLING_ANI",
	IECallingName:     "CALLING_NAME",
	IECalledContext:   "CALLED_CONTEXT",
	IEUsername:        "USERNAME",
	IEPassword:        "PASSWORD",
	IECapability:      "CAPABILITY",
	IEFormat:          "FORMAT",
	IELanguage:        "LANGUAGE",
	IEVersion:         "VERSION",
	IEADSICPE:         "ADSICPE",
	IEDNID:            "DNID",
	IEAuthMethods:     "AUTHMETHODS",
	IEChallenge:       "CHALLENGE",
	IEMD5Result:       "MD5_RESULT",
	IERSAResult:       "RSA_RESULT",
	IEApparentAddr:    "APPARENT_ADDR",
	IERefresh:         "REFRESH",
	IEDPStatus:        "DPSTATUS",
	IECallNo:          "CALLNO",
	IECause:           "CAUSE",
	IEIAX2Unknown:     "IAX2_UNKNOWN",
	IEMsgCount:        "MSGCOUNT",
	IEAutoAnswer:      "AUTOANSWER",
	IEMusicOnHold:     "MUSICONHOLD",
	IETransferID:      "TRANSFERID",
	IERDNIS:           "RDNIS",
	IEProvisioning:    "PROVISIONING",
	IEAESProvisioning: "AESPROVISIONING",
	IEDateTime:        "DATETIME",
	IEDeviceType:      "DEVICETYPE",
	IEServiceIdent:    "SERVICEIDENT",
	IEFirmwareVer:     "FIRMWAREVER",
	IEFwBlockDesc:     "FWBLOCKDESC",
	IEFwBlockData:     "FWBLOCKDATA",
	IEProvVer:         "PROVVER",
	IECallingPres:     "CALLINGPRES",
	IECallingTON:      "CALLINGTON",
	IECallingTNS:      "CALLINGTNS",
	IESamplingRate:    "SAMPLINGRATE",
	IECauseCode:       "CAUSECODE",
	IEEncryption:      "ENCRYPTION",
	IEEncKey:          "ENCKEY",
	IECodecPrefs:      "CODEC_PREFS",
	IERRJitter:        "RR_JITTER",
	IERRLoss:          "RR_LOSS",
	IERRPkts:          "RR_PKTS",
	IERRDelay:         "RR_DELAY",
	IERRDropped:       "RR_DROPPED",
	IERROOO:           "RR_OOO",
	IEVariable:        "VARIABLE",
	IEOSPToken:        "OSPTOKEN",
}

func (t IEType) String() string {
	if name, ok := ieTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IETypeFromString resolves an IE type by its wire name.
func IETypeFromString(s string) (IEType, bool) {
	for t, name := range ieTypeNames {
		if strings.EqualFold(s, name) {
			return t, true
		}
	}
	return 0, false
}

// Media frame format bitmasks.
const (
	// FormatG723_1 is G.723.1 compression.
	FormatG723_1 uint32 = 1 << 0
	// FormatGSM is GSM compression.
	FormatGSM uint32 = 1 << 1
	// FormatULAW is raw mu-law data (G.711).
	FormatULAW uint32 = 1 << 2
	// FormatALAW is raw A-law data (G.711).
	FormatALAW uint32 = 1 << 3
	// FormatG726AAL2 is ADPCM (G.726, 32kbps, AAL2 codeword packing).
	FormatG726AAL2 uint32 = 1 << 4
	// FormatADPCM is ADPCM (IMA).
	FormatADPCM uint32 = 1 << 5
	// FormatSlinear is raw 16-bit signed linear (8000 Hz) PCM.
	FormatSlinear uint32 = 1 << 6
	// FormatLPC10 is LPC10, 180 samples/frame.
	FormatLPC10 uint32 = 1 << 7
	// FormatG729A is G.729A audio.
	FormatG729A uint32 = 1 << 8
	// FormatSpeex is Speex free compression.
	FormatSpeex uint32 = 1 << 9
	// FormatILBC is iLBC free compression.
	FormatILBC uint32 = 1 << 10
	// FormatG726 is ADPCM (G.726, 32kbps, RFC3551 codeword packing).
	FormatG726 uint32 = 1 << 11
	// FormatG722 is G.722.
	FormatG722 uint32 = 1 << 12
	// FormatMaxAudio is the maximum audio format bit.
	FormatMaxAudio uint32 = 1 << 15
	// FormatAudioMask selects the audio format bits.
	FormatAudioMask uint32 = (1 << 16) - 1
	// FormatJPEG is JPEG images.
	FormatJPEG uint32 = 1 << 16
	// FormatPNG is PNG images.
	FormatPNG uint32 = 1 << 17
	// FormatH261 is H.261 video.
	FormatH261 uint32 = 1 << 18
	// FormatH263 is H.263 video.
	FormatH263 uint32 = 1 << 19
	// FormatH263Plus is H.263+ video.
	FormatH263Plus uint32 = 1 << 20
	// FormatH264 is H.264 video.
	FormatH264 uint32 = 1 << 21
	// FormatMaxVideo is the maximum video format bit.
	FormatMaxVideo uint32 = 1 << 24
	// FormatVideoMask selects the video format bits.
	FormatVideoMask uint32 = ((1 << 25) - 1) &^ FormatAudioMask
)

var formatNames = map[string]uint32{
	"G723_1":    FormatG723_1,
	"GSM":       FormatGSM,
	"ULAW":      FormatULAW,
	"ALAW":      FormatALAW,
	"G726_AAL2": FormatG726AAL2,
	"ADPCM":     FormatADPCM,
	"SLINEAR":   FormatSlinear,
	"LPC10":     FormatLPC10,
	"G729A":     FormatG729A,
	"SPEEX":     FormatSpeex,
	"ILBC":      FormatILBC,
	"G726":      FormatG726,
	"G722":      FormatG722,
	"JPEG":      FormatJPEG,
	"PNG":       FormatPNG,
	"H261":      FormatH261,
	"H263":      FormatH263,
	"H263_PLUS": FormatH263Plus,
	"H264":      FormatH264,
}

// FormatFromString resolves a media format bit by codec name.
func FormatFromString(s string) (uint32, bool) {
	for name, bit := range formatNames {
		if strings.EqualFold(s, name) {
			return bit, true
		}
	}
	return 0, false
}

// Authentication method bitmasks.
const (
	// AuthPlaintext is plaintext authentication.
	AuthPlaintext uint32 = 1 << 0
	// AuthMD5 is MD5 challenge/response authentication.
	AuthMD5 uint32 = 1 << 1
	// AuthRSA is RSA authentication.
	AuthRSA uint32 = 1 << 2
)
