package protocol

// Header: [8B payload_length big-endian]
const HeaderSize = 8

// Maximum payload size (512 MB). A full-resolution 8000x6000 JPEG is well
// under this; anything larger is a corrupt header.
const MaxFrameSize = 512 * 1024 * 1024

// MaxCommandSize bounds a request payload. The longest token is 15 bytes;
// a larger request header is malformed and is rejected before any payload
// is read.
const MaxCommandSize = 64

// Default TCP port the camera device listens on.
const DefaultPort = 8888

// Command identifies a request sent by the controller.
type Command byte

const (
	CmdUnrecognized Command = iota
	CmdCaptureMain
	CmdCapturePreview
	CmdGetMain    // legacy alias of CmdCaptureMain
	CmdGetPreview // legacy alias of CmdCapturePreview
	CmdKeepAlive
	CmdPowerOff
)

// Wire tokens, ASCII and case-sensitive.
const (
	tokenCaptureMain    = "CAPTURE_MAIN"
	tokenCapturePreview = "CAPTURE_PREVIEW"
	tokenGetMain        = "GET_MAIN"
	tokenGetPreview     = "GET_PREVIEW"
	tokenKeepAlive      = "KEEPALIVE"
	tokenPowerOff       = "POWER_OFF"
)

// Kind selects which sensor stream a capture command reads.
type Kind int

const (
	KindNone Kind = iota
	KindMain
	KindPreview
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindPreview:
		return "preview"
	default:
		return "none"
	}
}
