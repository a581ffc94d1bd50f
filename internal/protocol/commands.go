package protocol

import "io"

// String returns the wire token for c, or "UNRECOGNIZED".
func (c Command) String() string {
	switch c {
	case CmdCaptureMain:
		return tokenCaptureMain
	case CmdCapturePreview:
		return tokenCapturePreview
	case CmdGetMain:
		return tokenGetMain
	case CmdGetPreview:
		return tokenGetPreview
	case CmdKeepAlive:
		return tokenKeepAlive
	case CmdPowerOff:
		return tokenPowerOff
	default:
		return "UNRECOGNIZED"
	}
}

// Encode returns the request payload for c. CmdUnrecognized encodes to nil.
func (c Command) Encode() []byte {
	if c == CmdUnrecognized || c > CmdPowerOff {
		return nil
	}
	return []byte(c.String())
}

// Kind reports which capture c requests, or KindNone for non-capture commands.
func (c Command) Kind() Kind {
	switch c {
	case CmdCaptureMain, CmdGetMain:
		return KindMain
	case CmdCapturePreview, CmdGetPreview:
		return KindPreview
	default:
		return KindNone
	}
}

// IsCapture reports whether c asks the backend for an image.
func (c Command) IsCapture() bool {
	return c.Kind() != KindNone
}

// CaptureCommand returns the request command for a capture kind.
func CaptureCommand(k Kind) Command {
	switch k {
	case KindMain:
		return CmdCaptureMain
	case KindPreview:
		return CmdCapturePreview
	default:
		return CmdUnrecognized
	}
}

// ParseCommand decodes a request payload. Unknown tokens, including invalid
// UTF-8 and tokens differing only in case, decode to CmdUnrecognized.
func ParseCommand(payload []byte) Command {
	switch string(payload) {
	case tokenCaptureMain:
		return CmdCaptureMain
	case tokenCapturePreview:
		return CmdCapturePreview
	case tokenGetMain:
		return CmdGetMain
	case tokenGetPreview:
		return CmdGetPreview
	case tokenKeepAlive:
		return CmdKeepAlive
	case tokenPowerOff:
		return CmdPowerOff
	default:
		return CmdUnrecognized
	}
}

// WriteCommand writes c as a request frame.
func WriteCommand(w io.Writer, c Command) error {
	return WriteFrame(w, c.Encode())
}

// ReadCommand reads one request frame of at most MaxCommandSize bytes. The
// raw payload is returned alongside the command so callers can log
// unrecognized tokens.
func ReadCommand(r io.Reader) (Command, []byte, error) {
	payload, err := ReadFrameLimit(r, MaxCommandSize)
	if err != nil {
		return CmdUnrecognized, nil, err
	}
	return ParseCommand(payload), payload, nil
}

// WriteResult writes a capture response. A nil or empty image is sent as the
// zero-length failure frame.
func WriteResult(w io.Writer, image []byte) error {
	return WriteFrame(w, image)
}

// DecodeResult interprets a capture response payload. A zero-length payload
// always means the backend failed; it is never an empty image.
func DecodeResult(payload []byte) ([]byte, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}
